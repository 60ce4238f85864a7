package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/focusguard/backend/internal/models"
)

// fileState is the on-disk document of a FileRepository.
type fileState struct {
	Sites      []models.BlockedSite  `json:"sites"`
	Limits     []models.TimeLimit    `json:"limits"`
	Schedules  []models.Schedule     `json:"schedules"`
	Sessions   []models.FocusSession `json:"sessions"`
	Usage      []models.UsageEntry   `json:"usage"`
	BlockPages []models.BlockPage    `json:"block_pages"`
}

// FileRepository keeps every record in memory and rewrites one JSON file on
// each mutation. It suits a single-user install or local development.
type FileRepository struct {
	mu    sync.RWMutex
	store *JSONStore
	state fileState
}

// NewFileRepository loads dataDir/focusguard.json if it exists.
func NewFileRepository(dataDir string) (*FileRepository, error) {
	store, err := NewJSONStore(dataDir, "focusguard.json")
	if err != nil {
		return nil, err
	}

	r := &FileRepository{store: store}
	if err := store.Load(&r.state); err != nil {
		return nil, err
	}
	return r, nil
}

// Ping always succeeds; the state lives in memory.
func (r *FileRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *FileRepository) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Save(&r.state)
}

func (st fileState) clone() fileState {
	return fileState{
		Sites:      append([]models.BlockedSite(nil), st.Sites...),
		Limits:     append([]models.TimeLimit(nil), st.Limits...),
		Schedules:  append([]models.Schedule(nil), st.Schedules...),
		Sessions:   append([]models.FocusSession(nil), st.Sessions...),
		Usage:      append([]models.UsageEntry(nil), st.Usage...),
		BlockPages: append([]models.BlockPage(nil), st.BlockPages...),
	}
}

// commit applies mutate to a copy of the state and keeps it only once the
// copy is on disk. Must be called with r.mu held for writing.
func (r *FileRepository) commit(mutate func(st *fileState)) error {
	next := r.state.clone()
	mutate(&next)
	if err := r.store.Save(&next); err != nil {
		return err
	}
	r.state = next
	return nil
}

func (r *FileRepository) ListSites(ctx context.Context, userID string) ([]models.BlockedSite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.BlockedSite, 0)
	for _, s := range r.state.Sites {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *FileRepository) AddSite(ctx context.Context, site *models.BlockedSite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.state.Sites {
		if s.UserID == site.UserID && s.Domain == site.Domain {
			return ErrConflict
		}
	}
	return r.commit(func(st *fileState) {
		st.Sites = append(st.Sites, *site)
	})
}

func (r *FileRepository) DeleteSite(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.state.Sites {
		if s.ID == id && s.UserID == userID {
			return r.commit(func(st *fileState) {
				st.Sites = append(st.Sites[:i], st.Sites[i+1:]...)
			})
		}
	}
	return ErrNotFound
}

func (r *FileRepository) ListLimits(ctx context.Context, userID string) ([]models.TimeLimit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.TimeLimit, 0)
	for _, l := range r.state.Limits {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (r *FileRepository) UpsertLimit(ctx context.Context, limit *models.TimeLimit) (*models.TimeLimit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, l := range r.state.Limits {
		if l.UserID == limit.UserID && l.Domain == limit.Domain {
			l.DailyMinutes = limit.DailyMinutes
			l.UpdatedAt = limit.UpdatedAt
			if err := r.commit(func(st *fileState) { st.Limits[i] = l }); err != nil {
				return nil, err
			}
			return &l, nil
		}
	}

	stored := *limit
	if err := r.commit(func(st *fileState) { st.Limits = append(st.Limits, stored) }); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *FileRepository) DeleteLimit(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, l := range r.state.Limits {
		if l.ID == id && l.UserID == userID {
			return r.commit(func(st *fileState) {
				st.Limits = append(st.Limits[:i], st.Limits[i+1:]...)
			})
		}
	}
	return ErrNotFound
}

func (r *FileRepository) ListSchedules(ctx context.Context, userID string) ([]models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Schedule, 0)
	for _, s := range r.state.Schedules {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *FileRepository) GetSchedule(ctx context.Context, userID, id string) (*models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.state.Schedules {
		if s.ID == id && s.UserID == userID {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (r *FileRepository) SaveSchedule(ctx context.Context, sched *models.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.state.Schedules {
		if s.ID == sched.ID {
			if s.UserID != sched.UserID {
				return ErrNotFound
			}
			return r.commit(func(st *fileState) { st.Schedules[i] = *sched })
		}
	}
	return r.commit(func(st *fileState) {
		st.Schedules = append(st.Schedules, *sched)
	})
}

func (r *FileRepository) DeleteSchedule(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.state.Schedules {
		if s.ID == id && s.UserID == userID {
			return r.commit(func(st *fileState) {
				st.Schedules = append(st.Schedules[:i], st.Schedules[i+1:]...)
			})
		}
	}
	return ErrNotFound
}

func (r *FileRepository) CreateSession(ctx context.Context, sess *models.FocusSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.state.Sessions {
		if s.UserID == sess.UserID && s.Status == models.SessionActive {
			return ErrConflict
		}
	}
	return r.commit(func(st *fileState) {
		st.Sessions = append(st.Sessions, *sess)
	})
}

func (r *FileRepository) ActiveSession(ctx context.Context, userID string) (*models.FocusSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.state.Sessions {
		if s.UserID == userID && s.Status == models.SessionActive {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (r *FileRepository) GetSession(ctx context.Context, userID, id string) (*models.FocusSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.state.Sessions {
		if s.ID == id && s.UserID == userID {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (r *FileRepository) FinishSession(ctx context.Context, userID, id string, status models.SessionStatus, endedAt time.Time) (*models.FocusSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.state.Sessions {
		if s.ID != id || s.UserID != userID {
			continue
		}
		if s.Status != models.SessionActive {
			return nil, ErrConflict
		}
		s.Status = status
		s.EndedAt = &endedAt
		if err := r.commit(func(st *fileState) { st.Sessions[i] = s }); err != nil {
			return nil, err
		}
		return &s, nil
	}
	return nil, ErrNotFound
}

func (r *FileRepository) ListSessions(ctx context.Context, userID string, limit int) ([]models.FocusSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.FocusSession, 0)
	for _, s := range r.state.Sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FileRepository) ExpiredSessions(ctx context.Context, now time.Time) ([]models.FocusSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.FocusSession, 0)
	for _, s := range r.state.Sessions {
		if s.Status == models.SessionActive && !s.EndsAt.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *FileRepository) AddUsage(ctx context.Context, userID, day, domain string, seconds int, at time.Time) (*models.UsageEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, u := range r.state.Usage {
		if u.UserID == userID && u.Day == day && u.Domain == domain {
			u.Seconds += seconds
			u.UpdatedAt = at
			if err := r.commit(func(st *fileState) { st.Usage[i] = u }); err != nil {
				return nil, err
			}
			return &u, nil
		}
	}

	entry := models.UsageEntry{UserID: userID, Day: day, Domain: domain, Seconds: seconds, UpdatedAt: at}
	if err := r.commit(func(st *fileState) { st.Usage = append(st.Usage, entry) }); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *FileRepository) ListUsage(ctx context.Context, userID, day string) ([]models.UsageEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.UsageEntry, 0)
	for _, u := range r.state.Usage {
		if u.UserID == userID && u.Day == day {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seconds > out[j].Seconds })
	return out, nil
}

func (r *FileRepository) GetBlockPage(ctx context.Context, userID string) (*models.BlockPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.state.BlockPages {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (r *FileRepository) PutBlockPage(ctx context.Context, page *models.BlockPage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.state.BlockPages {
		if p.UserID == page.UserID {
			return r.commit(func(st *fileState) { st.BlockPages[i] = *page })
		}
	}
	return r.commit(func(st *fileState) {
		st.BlockPages = append(st.BlockPages, *page)
	})
}
