package models

import (
	"net/url"
	"time"
)

// BlockPage customizes what the extension shows in place of a blocked site.
type BlockPage struct {
	UserID      string    `json:"user_id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	Message     string    `json:"message" bson:"message"`
	Quote       string    `json:"quote,omitempty" bson:"quote,omitempty"`
	RedirectURL string    `json:"redirect_url,omitempty" bson:"redirect_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// DefaultBlockPage is served until the user saves their own.
func DefaultBlockPage(userID string) *BlockPage {
	return &BlockPage{
		UserID:  userID,
		Title:   "Stay focused",
		Message: "This site is blocked right now.",
	}
}

type BlockPageRequest struct {
	Title       string `json:"title"`
	Message     string `json:"message"`
	Quote       string `json:"quote"`
	RedirectURL string `json:"redirect_url"`
}

func (r *BlockPageRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Title == "" {
		errors["title"] = "Title is required"
	} else if len(r.Title) > 120 {
		errors["title"] = "Title is too long"
	}
	if len(r.Message) > 1000 {
		errors["message"] = "Message is too long"
	}
	if len(r.Quote) > 500 {
		errors["quote"] = "Quote is too long"
	}
	if r.RedirectURL != "" {
		u, err := url.Parse(r.RedirectURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors["redirect_url"] = "Redirect URL must be an http(s) URL"
		}
	}

	return errors
}
