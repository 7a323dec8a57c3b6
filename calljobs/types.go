// Package calljobs turns a scheduled squad or coaching call into timed reminder jobs and
// runs the sweep that delivers them.
package calljobs

import (
	"errors"
	"strings"
	"time"

	"github.com/cppla/slimcircle/models"
)

// ErrUnknownKind is returned for a call kind without a job table.
var ErrUnknownKind = errors.New("unknown call kind")

// Kind is the kind of call a job reminds about.
type Kind string

const (
	KindSquad    Kind = "squad"
	KindCoaching Kind = "coaching"
)

// Kinds lists every kind in sweep order.
var Kinds = []Kind{KindSquad, KindCoaching}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSquad, KindCoaching:
		return k, nil
	}
	return "", ErrUnknownKind
}

// Table is the job table for the kind.
func (k Kind) Table() (string, error) {
	switch k {
	case KindSquad:
		return models.SquadCallJobsTable, nil
	case KindCoaching:
		return models.CoachingCallJobsTable, nil
	}
	return "", ErrUnknownKind
}

// JobType names one reminder of a call.
type JobType string

const (
	Notify24h  JobType = "notify-24h"
	Email24h   JobType = "email-24h"
	Notify1h   JobType = "notify-1h"
	Email1h    JobType = "email-1h"
	NotifyLive JobType = "notify-live"
)

// Reminder windows.
const (
	Window24h  = "24h"
	Window1h   = "1h"
	WindowLive = "live"
)

type jobOffset struct {
	Type   JobType
	Offset time.Duration
}

// schedule is the fixed reminder plan. There is no email at call start.
var schedule = []jobOffset{
	{Notify24h, -24 * time.Hour},
	{Email24h, -24 * time.Hour},
	{Notify1h, -time.Hour},
	{Email1h, -time.Hour},
	{NotifyLive, 0},
}

// JobTypes lists every job type in schedule order.
func JobTypes() []JobType {
	out := make([]JobType, 0, len(schedule))
	for _, s := range schedule {
		out = append(out, s.Type)
	}
	return out
}

// IsEmail reports whether the job is delivered by email.
func (t JobType) IsEmail() bool {
	return strings.HasPrefix(string(t), "email-")
}

// IsNotify reports whether the job is delivered as an in-app notification.
func (t JobType) IsNotify() bool {
	return strings.HasPrefix(string(t), "notify-")
}

// Window is the reminder window, one of Window24h, Window1h or WindowLive.
func (t JobType) Window() string {
	_, w, _ := strings.Cut(string(t), "-")
	return w
}

// JobKey identifies the single job a subject may hold for a type.
type JobKey struct {
	Kind      Kind
	SubjectID string
	CoachID   string
	Type      JobType
}

// ID renders the deterministic row id. Coaching subjects include the coach so a coach
// change never collides with the previous pair's jobs.
func (k JobKey) ID() string {
	if k.CoachID != "" {
		return k.SubjectID + "_" + k.CoachID + "_" + string(k.Type)
	}
	return k.SubjectID + "_" + string(k.Type)
}

// CallSpec describes the call being scheduled along with its display fields.
type CallSpec struct {
	Kind      Kind
	SubjectID string
	CoachID   string
	CallTime  time.Time

	SubjectName string
	CoachName   string
	Timezone    string
	Location    string
	Title       string
}

func (c CallSpec) key(t JobType) JobKey {
	return JobKey{Kind: c.Kind, SubjectID: c.SubjectID, CoachID: c.CoachID, Type: t}
}

// SweepResult aggregates one sweep.
type SweepResult struct {
	Processed int  `json:"processed"`
	Executed  int  `json:"executed"`
	Skipped   int  `json:"skipped"`
	Errors    int  `json:"errors"`
	Abandoned int  `json:"abandoned"`
	Locked    bool `json:"locked"`
}

func (r *SweepResult) add(o SweepResult) {
	r.Processed += o.Processed
	r.Executed += o.Executed
	r.Skipped += o.Skipped
	r.Errors += o.Errors
	r.Abandoned += o.Abandoned
}

// callInstant truncates to whole seconds so stored and compared call times agree
// across database datetime precisions.
func callInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
