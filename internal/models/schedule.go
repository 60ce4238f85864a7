package models

import (
	"time"

	"github.com/focusguard/backend/internal/blocking"
)

// Schedule is a recurring weekly blocking window. Days use time.Weekday
// numbering (0 = Sunday). Start and End are "HH:MM" in the service timezone.
type Schedule struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Name      string    `json:"name" bson:"name"`
	Days      []int     `json:"days" bson:"days"`
	Start     string    `json:"start" bson:"start"`
	End       string    `json:"end" bson:"end"`
	Domains   []string  `json:"domains" bson:"domains"`
	Enabled   bool      `json:"enabled" bson:"enabled"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Window converts the stored schedule into its evaluable form. Stored
// schedules were validated on write, so parse errors fall back to zero.
func (s *Schedule) Window() blocking.Window {
	start, _ := blocking.ParseClock(s.Start)
	end, _ := blocking.ParseClock(s.End)

	days := make([]time.Weekday, 0, len(s.Days))
	for _, d := range s.Days {
		days = append(days, time.Weekday(d))
	}

	return blocking.Window{
		ID:      s.ID,
		Days:    days,
		Start:   start,
		End:     end,
		Domains: s.Domains,
		Enabled: s.Enabled,
	}
}

type ScheduleRequest struct {
	Name    string   `json:"name"`
	Days    []int    `json:"days"`
	Start   string   `json:"start"`
	End     string   `json:"end"`
	Domains []string `json:"domains"`
	Enabled *bool    `json:"enabled"`
}

func (r *ScheduleRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 80 {
		errors["name"] = "Name is too long"
	}

	if len(r.Days) == 0 {
		errors["days"] = "At least one day is required"
	}
	for _, d := range r.Days {
		if d < 0 || d > 6 {
			errors["days"] = "Days must be between 0 (Sunday) and 6 (Saturday)"
			break
		}
	}

	if _, err := blocking.ParseClock(r.Start); err != nil {
		errors["start"] = "Start must be HH:MM"
	}
	if _, err := blocking.ParseClock(r.End); err != nil {
		errors["end"] = "End must be HH:MM"
	}

	for _, d := range r.Domains {
		if !blocking.ValidDomain(d) {
			errors["domains"] = "Domain " + d + " is invalid"
			break
		}
	}

	return errors
}

// IsEnabled defaults to true when the field was omitted.
func (r *ScheduleRequest) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}
