package services

import (
	"context"
	"time"

	"github.com/focusguard/backend/internal/blocking"
	"github.com/focusguard/backend/internal/models"
	"github.com/focusguard/backend/internal/storage"
)

// DefaultMaxReportSeconds bounds a single heartbeat.
const DefaultMaxReportSeconds = 300

type UsageService struct {
	repo       storage.Repository
	state      *BlockStateService
	notifier   Notifier
	maxSeconds int
}

func NewUsageService(repo storage.Repository, state *BlockStateService, notifier Notifier, maxSeconds int) *UsageService {
	if maxSeconds <= 0 {
		maxSeconds = DefaultMaxReportSeconds
	}
	return &UsageService{repo: repo, state: state, notifier: orNop(notifier), maxSeconds: maxSeconds}
}

// ReportResult echoes the updated bucket and the decision for the reported
// host after the time was counted.
type ReportResult struct {
	Entry    *models.UsageEntry `json:"entry"`
	Decision blocking.Decision  `json:"decision"`
}

// Report adds a heartbeat to today's bucket for the reported host. Listeners
// are only notified when the report exhausts a time limit.
func (s *UsageService) Report(ctx context.Context, userID string, report *models.UsageReport) (*ReportResult, error) {
	if err := validate(report.Validate(s.maxSeconds)); err != nil {
		return nil, err
	}
	host, _ := report.Host()

	now := s.state.LocalNow()
	before, err := s.state.Input(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	wasLimited := blocking.Evaluate(before, host, now).Reason == blocking.ReasonTimeLimit

	entry, err := s.repo.AddUsage(ctx, userID, now.Format(models.DayLayout), host, report.Seconds, now.UTC())
	if err != nil {
		return nil, err
	}

	if before.Usage == nil {
		before.Usage = map[string]int{}
	}
	before.Usage[host] += report.Seconds
	decision := blocking.Evaluate(before, host, now)

	if decision.Reason == blocking.ReasonTimeLimit && !wasLimited {
		s.notifier.Publish(userID)
	}
	return &ReportResult{Entry: entry, Decision: decision}, nil
}

// Summary lists usage for day, which defaults to today in the service
// timezone.
func (s *UsageService) Summary(ctx context.Context, userID, day string) (*models.UsageSummary, error) {
	if day == "" {
		day = s.state.LocalNow().Format(models.DayLayout)
	} else if _, err := time.Parse(models.DayLayout, day); err != nil {
		return nil, ErrInvalidDay
	}

	entries, err := s.repo.ListUsage(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	sum := &models.UsageSummary{Day: day, Entries: entries}
	if sum.Entries == nil {
		sum.Entries = []models.UsageEntry{}
	}
	for _, e := range entries {
		sum.TotalSeconds += e.Seconds
	}
	return sum, nil
}
