package models

import (
	"time"

	"github.com/focusguard/backend/internal/blocking"
)

// DayLayout formats the local calendar day usage is bucketed by.
const DayLayout = "2006-01-02"

type UsageEntry struct {
	UserID    string    `json:"user_id" bson:"user_id"`
	Domain    string    `json:"domain" bson:"domain"`
	Day       string    `json:"day" bson:"day"`
	Seconds   int       `json:"seconds" bson:"seconds"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// UsageReport is a heartbeat from the extension: Seconds spent on the
// active tab's site since the previous report.
type UsageReport struct {
	URL     string `json:"url"`
	Domain  string `json:"domain"`
	Seconds int    `json:"seconds"`
}

// Host prefers the page URL and falls back to the bare domain, which must
// be a well-formed hostname.
func (r *UsageReport) Host() (string, bool) {
	if r.URL != "" {
		return blocking.HostFromURL(r.URL)
	}
	if !blocking.ValidDomain(r.Domain) {
		return "", false
	}
	return blocking.NormalizeDomain(r.Domain), true
}

// Validate checks the report against the largest heartbeat accepted.
func (r *UsageReport) Validate(maxSeconds int) map[string]string {
	errors := make(map[string]string)

	if r.URL == "" && r.Domain == "" {
		errors["url"] = "URL or domain is required"
	} else if _, ok := r.Host(); !ok {
		if r.URL != "" {
			errors["url"] = "URL is not a trackable web page"
		} else {
			errors["domain"] = "Invalid domain format"
		}
	}
	if r.Seconds < 1 || r.Seconds > maxSeconds {
		errors["seconds"] = "Seconds out of range"
	}

	return errors
}

type UsageSummary struct {
	Day          string       `json:"day"`
	TotalSeconds int          `json:"total_seconds"`
	Entries      []UsageEntry `json:"entries"`
}
