package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/slimcircle/alignment"
	"github.com/cppla/slimcircle/calljobs"
	"github.com/cppla/slimcircle/config"
	"github.com/cppla/slimcircle/middleware"
	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/notifications"
)

// wednesday is the fixed clock for every handler test.
var wednesday = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

const testUserHeader = "X-Test-User"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db))
	return db
}

type testEnv struct {
	db        *gorm.DB
	engine    *alignment.Engine
	scheduler *calljobs.Scheduler
	jobs      *calljobs.GormJobStore
	notes     *notifications.Store
	router    *gin.Engine
}

// asTestUser stands in for AuthRequired: the subject comes from a plain header.
func asTestUser(ctx *gin.Context) {
	if id := ctx.GetHeader(testUserHeader); id != "" {
		ctx.Set(middleware.ContextUserIDKey, id)
		ctx.Set(middleware.ContextEmailKey, id+"@example.com")
	}
	ctx.Next()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Set(config.AppConfig{AppBaseURL: "https://app.example.com"})

	db := openTestDB(t)
	now := func() time.Time { return wednesday }

	store := alignment.NewGormStore(db)
	behaviors, err := alignment.Behaviors(nil, store)
	require.NoError(t, err)
	engine, err := alignment.NewEngine(store, behaviors, alignment.Options{Location: time.UTC, Now: now})
	require.NoError(t, err)

	jobs := calljobs.NewGormJobStore(db)
	notes := notifications.NewStore(db)
	scheduler, err := calljobs.NewScheduler(jobs, calljobs.NewGormSubjects(db), notes, nil, calljobs.Options{Now: now})
	require.NoError(t, err)

	alignmentCtl := NewAlignmentController(db, engine)
	activityCtl := NewActivityController(db, engine)
	callCtl := NewCallController(db, scheduler)
	callCtl.now = now
	calcCtl := NewCalculatorController()
	calcCtl.now = now
	noteCtl := NewNotificationController(db, notes)
	authCtl := NewAuthController(db, engine)
	statsCtl := NewStatsController(db, jobs, engine)
	configCtl := NewConfigController(engine.Behaviors())

	r := gin.New()
	r.Use(asTestUser)
	api := r.Group("/api/v1")
	api.GET("/config", configCtl.GetConfig)
	api.GET("/stats", statsCtl.GetStats)
	api.POST("/calculator/plan", calcCtl.Plan)
	api.POST("/calculator/activity", calcCtl.Activity)
	api.GET("/users/me", authCtl.Me)
	api.PATCH("/users/me", authCtl.UpdateProfile)
	api.PATCH("/users/me/notification-preferences", noteCtl.UpdatePreferences)
	api.GET("/alignment/today", alignmentCtl.GetToday)
	api.POST("/alignment/today", alignmentCtl.UpdateToday)
	api.GET("/alignment/summary", alignmentCtl.Summary)
	api.POST("/checkins", activityCtl.CreateCheckIn)
	api.POST("/tasks", activityCtl.CreateTask)
	api.PUT("/entries/today", activityCtl.UpsertTodayEntry)
	api.POST("/circle/interactions", activityCtl.RecordCircleInteraction)
	api.GET("/squads/:id/alignment", alignmentCtl.SquadAlignment)
	api.PUT("/squads/:id/call", callCtl.SetSquadCall)
	api.DELETE("/squads/:id/call", callCtl.ClearSquadCall)
	api.PUT("/coaching/:userId/call", callCtl.SetCoachingCall)
	api.DELETE("/coaching/:userId/call", callCtl.ClearCoachingCall)
	api.GET("/notifications", noteCtl.List)
	api.POST("/notifications/:id/read", noteCtl.MarkRead)

	return &testEnv{db: db, engine: engine, scheduler: scheduler, jobs: jobs, notes: notes, router: r}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(testUserHeader, userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func (e *testEnv) seedUser(t *testing.T, u models.User) {
	t.Helper()
	require.NoError(t, e.db.Create(&u).Error)
}

func (e *testEnv) countJobs(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Table(table).Count(&n).Error)
	return n
}

type stubSweeper struct {
	calls  int
	result calljobs.SweepResult
}

func (s *stubSweeper) ProcessScheduledJobs(ctx context.Context) calljobs.SweepResult {
	s.calls++
	return s.result
}
