package services

import (
	"context"
	"errors"
	"time"

	"github.com/focusguard/backend/internal/blocking"
	"github.com/focusguard/backend/internal/models"
	"github.com/focusguard/backend/internal/storage"
)

// BlockStateService reconciles a user's stored rules, today's usage and the
// running focus session into blocking decisions.
type BlockStateService struct {
	repo  storage.Repository
	rules *RuleService
	loc   *time.Location
	now   func() time.Time
}

func NewBlockStateService(repo storage.Repository, rules *RuleService, loc *time.Location) *BlockStateService {
	if loc == nil {
		loc = time.UTC
	}
	return &BlockStateService{repo: repo, rules: rules, loc: loc, now: time.Now}
}

// CheckResult is the answer to "may I load this URL?". BlockPage is only set
// when the URL is blocked.
type CheckResult struct {
	URL       string            `json:"url"`
	Decision  blocking.Decision `json:"decision"`
	BlockPage *models.BlockPage `json:"block_page,omitempty"`
}

// LocalNow is the current instant in the service timezone; schedules and
// usage days are interpreted there.
func (s *BlockStateService) LocalNow() time.Time {
	return s.now().In(s.loc)
}

// Input loads everything the engine needs for userID at now.
func (s *BlockStateService) Input(ctx context.Context, userID string, now time.Time) (blocking.Input, error) {
	var in blocking.Input

	sites, err := s.repo.ListSites(ctx, userID)
	if err != nil {
		return in, err
	}
	for _, site := range sites {
		in.Sites = append(in.Sites, blocking.Site{Domain: site.Domain, Always: site.Always})
	}

	limits, err := s.repo.ListLimits(ctx, userID)
	if err != nil {
		return in, err
	}
	for _, l := range limits {
		in.Limits = append(in.Limits, blocking.Limit{Domain: l.Domain, DailySeconds: l.DailyMinutes * 60})
	}

	schedules, err := s.repo.ListSchedules(ctx, userID)
	if err != nil {
		return in, err
	}
	for i := range schedules {
		in.Windows = append(in.Windows, schedules[i].Window())
	}

	usage, err := s.repo.ListUsage(ctx, userID, now.Format(models.DayLayout))
	if err != nil {
		return in, err
	}
	in.Usage = make(map[string]int, len(usage))
	for _, u := range usage {
		in.Usage[u.Domain] += u.Seconds
	}

	sess, err := s.repo.ActiveSession(ctx, userID)
	switch {
	case err == nil:
		if sess.Running(now) {
			in.Session = &blocking.Session{ID: sess.ID, EndsAt: sess.EndsAt}
		}
	case !errors.Is(err, storage.ErrNotFound):
		return in, err
	}

	return in, nil
}

func (s *BlockStateService) Check(ctx context.Context, userID, rawURL string) (*CheckResult, error) {
	now := s.LocalNow()
	res := &CheckResult{URL: rawURL}

	host, ok := blocking.HostFromURL(rawURL)
	if !ok {
		return res, nil
	}

	in, err := s.Input(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	res.Decision = blocking.Evaluate(in, host, now)
	if res.Decision.Blocked && s.rules != nil {
		page, err := s.rules.BlockPage(ctx, userID)
		if err != nil {
			return nil, err
		}
		res.BlockPage = page
	}
	return res, nil
}

func (s *BlockStateService) Snapshot(ctx context.Context, userID string) (*blocking.Snapshot, error) {
	now := s.LocalNow()
	in, err := s.Input(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	snap := blocking.BuildSnapshot(in, now)
	return &snap, nil
}
