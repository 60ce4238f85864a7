package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/focusguard/backend/internal/blocking"
	"github.com/focusguard/backend/internal/models"
	"github.com/focusguard/backend/internal/storage"
)

// RuleService manages the user-authored rules the blocking engine reads:
// blocked sites, time limits, schedules and the custom block page.
type RuleService struct {
	repo     storage.Repository
	notifier Notifier
	now      func() time.Time
}

func NewRuleService(repo storage.Repository, notifier Notifier) *RuleService {
	return &RuleService{repo: repo, notifier: orNop(notifier), now: time.Now}
}

func (s *RuleService) ListSites(ctx context.Context, userID string) ([]models.BlockedSite, error) {
	return s.repo.ListSites(ctx, userID)
}

func (s *RuleService) AddSite(ctx context.Context, userID string, req *models.AddSiteRequest) (*models.BlockedSite, error) {
	if err := validate(req.Validate()); err != nil {
		return nil, err
	}

	site := &models.BlockedSite{
		ID:        uuid.New().String(),
		UserID:    userID,
		Domain:    blocking.NormalizeDomain(req.Domain),
		Always:    req.Always,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AddSite(ctx, site); err != nil {
		return nil, translate(err, ErrDuplicateSite)
	}

	s.notifier.Publish(userID)
	return site, nil
}

func (s *RuleService) DeleteSite(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteSite(ctx, userID, id); err != nil {
		return translate(err, nil)
	}
	s.notifier.Publish(userID)
	return nil
}

func (s *RuleService) ListLimits(ctx context.Context, userID string) ([]models.TimeLimit, error) {
	return s.repo.ListLimits(ctx, userID)
}

// UpsertLimit sets the daily cap for a domain, replacing any previous cap.
func (s *RuleService) UpsertLimit(ctx context.Context, userID string, req *models.UpsertLimitRequest) (*models.TimeLimit, error) {
	if err := validate(req.Validate()); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	limit, err := s.repo.UpsertLimit(ctx, &models.TimeLimit{
		ID:           uuid.New().String(),
		UserID:       userID,
		Domain:       blocking.NormalizeDomain(req.Domain),
		DailyMinutes: req.DailyMinutes,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(userID)
	return limit, nil
}

func (s *RuleService) DeleteLimit(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteLimit(ctx, userID, id); err != nil {
		return translate(err, nil)
	}
	s.notifier.Publish(userID)
	return nil
}

func (s *RuleService) ListSchedules(ctx context.Context, userID string) ([]models.Schedule, error) {
	return s.repo.ListSchedules(ctx, userID)
}

func (s *RuleService) CreateSchedule(ctx context.Context, userID string, req *models.ScheduleRequest) (*models.Schedule, error) {
	if err := validate(req.Validate()); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sched := &models.Schedule{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
	}
	applySchedule(sched, req, now)

	if err := s.repo.SaveSchedule(ctx, sched); err != nil {
		return nil, translate(err, nil)
	}

	s.notifier.Publish(userID)
	return sched, nil
}

func (s *RuleService) UpdateSchedule(ctx context.Context, userID, id string, req *models.ScheduleRequest) (*models.Schedule, error) {
	if err := validate(req.Validate()); err != nil {
		return nil, err
	}

	sched, err := s.repo.GetSchedule(ctx, userID, id)
	if err != nil {
		return nil, translate(err, nil)
	}
	applySchedule(sched, req, s.now().UTC())

	if err := s.repo.SaveSchedule(ctx, sched); err != nil {
		return nil, translate(err, nil)
	}

	s.notifier.Publish(userID)
	return sched, nil
}

func (s *RuleService) DeleteSchedule(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteSchedule(ctx, userID, id); err != nil {
		return translate(err, nil)
	}
	s.notifier.Publish(userID)
	return nil
}

func applySchedule(sched *models.Schedule, req *models.ScheduleRequest, now time.Time) {
	sched.Name = req.Name
	sched.Days = dedupeDays(req.Days)
	sched.Start = req.Start
	sched.End = req.End
	sched.Domains = normalizeDomains(req.Domains)
	sched.Enabled = req.IsEnabled()
	sched.UpdatedAt = now
}

func dedupeDays(days []int) []int {
	var seen [7]bool
	out := make([]int, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, d := range in {
		n := blocking.NormalizeDomain(d)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// BlockPage returns the user's custom page, or the default one.
func (s *RuleService) BlockPage(ctx context.Context, userID string) (*models.BlockPage, error) {
	page, err := s.repo.GetBlockPage(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.DefaultBlockPage(userID), nil
	}
	return page, err
}

func (s *RuleService) PutBlockPage(ctx context.Context, userID string, req *models.BlockPageRequest) (*models.BlockPage, error) {
	if err := validate(req.Validate()); err != nil {
		return nil, err
	}

	page := &models.BlockPage{
		UserID:      userID,
		Title:       req.Title,
		Message:     req.Message,
		Quote:       req.Quote,
		RedirectURL: req.RedirectURL,
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.repo.PutBlockPage(ctx, page); err != nil {
		return nil, err
	}

	s.notifier.Publish(userID)
	return page, nil
}
