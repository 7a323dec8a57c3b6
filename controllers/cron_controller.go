package controllers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/slimcircle/calljobs"
	"github.com/cppla/slimcircle/utils"
)

// CronSecretHeader carries the shared secret of the external scheduler.
const CronSecretHeader = "X-Cron-Secret"

const sweepRequestTimeout = 4 * time.Minute

// Sweeper runs one pass over due call jobs.
type Sweeper interface {
	ProcessScheduledJobs(ctx context.Context) calljobs.SweepResult
}

// CronController lets an external scheduler trigger the call job sweep.
type CronController struct {
	sweeper Sweeper
	secret  string
}

// NewCronController creates a new CronController instance. An empty secret disables the endpoint.
func NewCronController(sweeper Sweeper, secret string) *CronController {
	return &CronController{sweeper: sweeper, secret: secret}
}

// RunCallJobs sweeps due reminders and reports the counts.
func (c *CronController) RunCallJobs(ctx *gin.Context) {
	if c.secret == "" {
		utils.Error(ctx, http.StatusServiceUnavailable, 50370, "cron endpoint disabled")
		return
	}
	given := ctx.GetHeader(CronSecretHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(c.secret)) != 1 {
		utils.Error(ctx, http.StatusUnauthorized, 40170, "invalid cron secret")
		return
	}

	sweepCtx, cancel := context.WithTimeout(ctx.Request.Context(), sweepRequestTimeout)
	defer cancel()
	utils.Success(ctx, c.sweeper.ProcessScheduledJobs(sweepCtx))
}
