package models

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// FocusSession is a time-bounded period during which blocked sites are
// enforced.
type FocusSession struct {
	ID        string        `json:"id" bson:"_id"`
	UserID    string        `json:"user_id" bson:"user_id"`
	Label     string        `json:"label" bson:"label"`
	StartedAt time.Time     `json:"started_at" bson:"started_at"`
	EndsAt    time.Time     `json:"ends_at" bson:"ends_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	Status    SessionStatus `json:"status" bson:"status"`
}

// Running reports whether the session still blocks at now.
func (s *FocusSession) Running(now time.Time) bool {
	return s.Status == SessionActive && now.Before(s.EndsAt)
}

const (
	MinSessionMinutes = 1
	MaxSessionMinutes = 8 * 60
)

type StartSessionRequest struct {
	Label           string `json:"label"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (r *StartSessionRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.DurationMinutes < MinSessionMinutes || r.DurationMinutes > MaxSessionMinutes {
		errors["duration_minutes"] = "Duration must be between 1 and 480 minutes"
	}
	if len(r.Label) > 120 {
		errors["label"] = "Label is too long"
	}

	return errors
}
