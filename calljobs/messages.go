package calljobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/cppla/slimcircle/models"
	"github.com/cppla/slimcircle/utils"
)

const (
	squadRoute    = "/squad"
	coachingRoute = "/coaching"
)

func notificationType(kind Kind, t JobType) string {
	switch kind {
	case KindSquad:
		switch t.Window() {
		case Window24h:
			return models.NotificationSquadCall24h
		case Window1h:
			return models.NotificationSquadCall1h
		}
		return models.NotificationSquadCallLive
	default:
		switch t.Window() {
		case Window24h:
			return models.NotificationCoachingCall24h
		case Window1h:
			return models.NotificationCoachingCall1h
		}
		return models.NotificationCoachingLive
	}
}

func reminderCategory(kind Kind, t JobType) string {
	if kind == KindSquad {
		if t.Window() == Window1h {
			return models.ReminderSquadCall1h
		}
		return models.ReminderSquadCall24h
	}
	if t.Window() == Window1h {
		return models.ReminderCoachingCall1h
	}
	return models.ReminderCoachingCall24h
}

func route(kind Kind) string {
	if kind == KindSquad {
		return squadRoute
	}
	return coachingRoute
}

// callName is how the call is referred to in running text.
func callName(kind Kind, job models.CallJob) string {
	if kind == KindSquad {
		if job.CallTitle != "" {
			return job.CallTitle
		}
		if job.SubjectName != "" {
			return job.SubjectName + " squad call"
		}
		return "Your squad call"
	}
	if job.CoachName != "" {
		return "Your coaching call with " + job.CoachName
	}
	return "Your coaching call"
}

func buildNotification(kind Kind, t JobType, job models.CallJob, user models.User) (*models.Notification, error) {
	when := dualTime(job, user)
	name := callName(kind, job)
	label := "Squad call"
	if kind == KindCoaching {
		label = "Coaching call"
	}

	var title, message string
	switch t.Window() {
	case Window24h:
		title = label + " tomorrow"
		message = fmt.Sprintf("%s is tomorrow at %s.", name, when)
	case Window1h:
		title = label + " in 1 hour"
		message = fmt.Sprintf("%s starts at %s.", name, when)
	default:
		title = label + " is live"
		message = fmt.Sprintf("%s is starting now.", name)
	}
	if job.CallLocation != "" && t.Window() != Window24h {
		message += " Join: " + job.CallLocation
	}

	meta, err := json.Marshal(map[string]any{
		"job_id":         job.ID,
		"job_type":       job.JobType,
		"call_date_time": job.CallDateTime,
		"call_timezone":  job.CallTimezone,
		"call_location":  job.CallLocation,
	})
	if err != nil {
		return nil, err
	}

	return &models.Notification{
		UserID:      user.ID,
		Type:        notificationType(kind, t),
		Title:       title,
		Message:     message,
		ActionRoute: route(kind),
		Metadata:    datatypes.JSON(meta),
	}, nil
}

func buildEmail(kind Kind, t JobType, job models.CallJob, user models.User, baseURL string) (string, string) {
	name := callName(kind, job)
	label := "squad call"
	if kind == KindCoaching {
		label = "coaching call"
	}

	var subject, lead string
	if t.Window() == Window1h {
		subject = "Starting in 1 hour: your " + label
		lead = fmt.Sprintf("%s starts in one hour, at %s.", name, dualTime(job, user))
	} else {
		subject = "Tomorrow: your " + label
		lead = fmt.Sprintf("%s is tomorrow, %s.", name, dualCallTime(job, user))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n%s\n", user.DisplayName(), lead)
	if job.CallLocation != "" {
		fmt.Fprintf(&b, "\nJoin here: %s\n", job.CallLocation)
	}
	if baseURL != "" {
		fmt.Fprintf(&b, "\nOpen SlimCircle: %s%s\n", strings.TrimRight(baseURL, "/"), route(kind))
	}
	b.WriteString("\nSee you there,\nThe SlimCircle team\n")
	return subject, b.String()
}

func dualTime(job models.CallJob, user models.User) string {
	return utils.DualTimeString(job.CallDateTime, job.CallTimezone, user.Timezone)
}

// dualCallTime adds the weekday and date, keeping the viewer's clock in parentheses.
func dualCallTime(job models.CallJob, user models.User) string {
	full := utils.FormatCallTime(job.CallDateTime, job.CallTimezone)
	dual := dualTime(job, user)
	if i := strings.Index(dual, " ("); i >= 0 {
		return full + dual[i:]
	}
	return full
}
