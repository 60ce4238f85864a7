package models

import (
	"time"

	"github.com/focusguard/backend/internal/blocking"
)

type BlockedSite struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Domain    string    `json:"domain" bson:"domain"`
	Always    bool      `json:"always" bson:"always"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type AddSiteRequest struct {
	Domain string `json:"domain"`
	Always bool   `json:"always"`
}

func (r *AddSiteRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Domain == "" {
		errors["domain"] = "Domain is required"
	} else if !blocking.ValidDomain(r.Domain) {
		errors["domain"] = "Domain is invalid"
	}

	return errors
}

type TimeLimit struct {
	ID           string    `json:"id" bson:"_id"`
	UserID       string    `json:"user_id" bson:"user_id"`
	Domain       string    `json:"domain" bson:"domain"`
	DailyMinutes int       `json:"daily_minutes" bson:"daily_minutes"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// MaxDailyMinutes is one full day.
const MaxDailyMinutes = 24 * 60

type UpsertLimitRequest struct {
	Domain       string `json:"domain"`
	DailyMinutes int    `json:"daily_minutes"`
}

func (r *UpsertLimitRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Domain == "" {
		errors["domain"] = "Domain is required"
	} else if !blocking.ValidDomain(r.Domain) {
		errors["domain"] = "Domain is invalid"
	}
	if r.DailyMinutes < 1 || r.DailyMinutes > MaxDailyMinutes {
		errors["daily_minutes"] = "Daily minutes must be between 1 and 1440"
	}

	return errors
}
