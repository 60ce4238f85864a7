package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/focusguard/backend/internal/models"
	"github.com/focusguard/backend/internal/storage"
)

const defaultSessionHistory = 50

type SessionService struct {
	repo     storage.Repository
	notifier Notifier
	now      func() time.Time
}

func NewSessionService(repo storage.Repository, notifier Notifier) *SessionService {
	return &SessionService{repo: repo, notifier: orNop(notifier), now: time.Now}
}

// Start opens a focus session. A previous session that has run past its end
// but was not yet reaped is completed first.
func (s *SessionService) Start(ctx context.Context, userID string, req *models.StartSessionRequest) (*models.FocusSession, error) {
	if err := validate(req.Validate()); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	prev, err := s.repo.ActiveSession(ctx, userID)
	switch {
	case err == nil:
		if prev.Running(now) {
			return nil, ErrSessionActive
		}
		if _, err := s.repo.FinishSession(ctx, userID, prev.ID, models.SessionCompleted, prev.EndsAt); err != nil && !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	sess := &models.FocusSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Label:     strings.TrimSpace(req.Label),
		StartedAt: now,
		EndsAt:    now.Add(time.Duration(req.DurationMinutes) * time.Minute),
		Status:    models.SessionActive,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, translate(err, ErrSessionActive)
	}

	slog.Info("Focus session started", "user_id", userID, "session_id", sess.ID, "minutes", req.DurationMinutes)
	s.notifier.Publish(userID)
	return sess, nil
}

// End stops a session early (cancelled) or closes one that already ran its
// course (completed).
func (s *SessionService) End(ctx context.Context, userID, id string) (*models.FocusSession, error) {
	now := s.now().UTC()

	sess, err := s.repo.GetSession(ctx, userID, id)
	if err != nil {
		return nil, translate(err, nil)
	}

	status := models.SessionCancelled
	endedAt := now
	if !now.Before(sess.EndsAt) {
		status = models.SessionCompleted
		endedAt = sess.EndsAt
	}

	done, err := s.repo.FinishSession(ctx, userID, id, status, endedAt)
	if err != nil {
		return nil, translate(err, ErrSessionEnded)
	}

	slog.Info("Focus session ended", "user_id", userID, "session_id", id, "status", status)
	s.notifier.Publish(userID)
	return done, nil
}

// Active returns the running session, or ErrNotFound.
func (s *SessionService) Active(ctx context.Context, userID string) (*models.FocusSession, error) {
	sess, err := s.repo.ActiveSession(ctx, userID)
	if err != nil {
		return nil, translate(err, nil)
	}
	if !sess.Running(s.now()) {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *SessionService) List(ctx context.Context, userID string, limit int) ([]models.FocusSession, error) {
	if limit <= 0 || limit > defaultSessionHistory {
		limit = defaultSessionHistory
	}
	return s.repo.ListSessions(ctx, userID, limit)
}

// ExpireDue completes every session whose end time has passed and returns
// how many were closed.
func (s *SessionService) ExpireDue(ctx context.Context) (int, error) {
	due, err := s.repo.ExpiredSessions(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, sess := range due {
		_, err := s.repo.FinishSession(ctx, sess.UserID, sess.ID, models.SessionCompleted, sess.EndsAt)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			slog.Error("Failed to expire focus session", "error", err, "session_id", sess.ID)
			continue
		}
		closed++
		s.notifier.Publish(sess.UserID)
	}
	return closed, nil
}
