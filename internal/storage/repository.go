package storage

import (
	"context"
	"errors"
	"time"

	"github.com/focusguard/backend/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflicts with existing data")
)

// Repository is the persistence boundary for everything the blocking engine
// reads and the API writes. All records are scoped by user ID.
type Repository interface {
	ListSites(ctx context.Context, userID string) ([]models.BlockedSite, error)
	// AddSite returns ErrConflict when the user already lists the domain.
	AddSite(ctx context.Context, site *models.BlockedSite) error
	DeleteSite(ctx context.Context, userID, id string) error

	ListLimits(ctx context.Context, userID string) ([]models.TimeLimit, error)
	// UpsertLimit keys limits by (user, domain) and returns the stored row.
	UpsertLimit(ctx context.Context, limit *models.TimeLimit) (*models.TimeLimit, error)
	DeleteLimit(ctx context.Context, userID, id string) error

	ListSchedules(ctx context.Context, userID string) ([]models.Schedule, error)
	GetSchedule(ctx context.Context, userID, id string) (*models.Schedule, error)
	// SaveSchedule inserts or replaces by ID.
	SaveSchedule(ctx context.Context, s *models.Schedule) error
	DeleteSchedule(ctx context.Context, userID, id string) error

	// CreateSession returns ErrConflict when the user already has an active
	// session.
	CreateSession(ctx context.Context, s *models.FocusSession) error
	ActiveSession(ctx context.Context, userID string) (*models.FocusSession, error)
	GetSession(ctx context.Context, userID, id string) (*models.FocusSession, error)
	// FinishSession moves an active session to status. ErrConflict if it is
	// no longer active.
	FinishSession(ctx context.Context, userID, id string, status models.SessionStatus, endedAt time.Time) (*models.FocusSession, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]models.FocusSession, error)
	// ExpiredSessions lists active sessions whose end time is not after now.
	ExpiredSessions(ctx context.Context, now time.Time) ([]models.FocusSession, error)

	// AddUsage atomically adds seconds to the (user, day, domain) bucket.
	AddUsage(ctx context.Context, userID, day, domain string, seconds int, at time.Time) (*models.UsageEntry, error)
	ListUsage(ctx context.Context, userID, day string) ([]models.UsageEntry, error)

	GetBlockPage(ctx context.Context, userID string) (*models.BlockPage, error)
	PutBlockPage(ctx context.Context, page *models.BlockPage) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
