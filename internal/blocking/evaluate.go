package blocking

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

type Reason string

const (
	ReasonNone         Reason = ""
	ReasonTimeLimit    Reason = "time_limit"
	ReasonFocusSession Reason = "focus_session"
	ReasonSchedule     Reason = "schedule"
	ReasonBlocklist    Reason = "blocklist"
)

// Site is a blocked-site entry. Always sites are blocked even when no
// session or schedule is running.
type Site struct {
	Domain string
	Always bool
}

// Limit caps daily usage of a domain.
type Limit struct {
	Domain       string
	DailySeconds int
}

// Session is the running focus session, if any.
type Session struct {
	ID     string
	EndsAt time.Time
}

// Input is everything Evaluate needs to know about one user. Usage maps a
// normalized domain to seconds spent on it during the current local day.
type Input struct {
	Sites   []Site
	Limits  []Limit
	Windows []Window
	Usage   map[string]int
	Session *Session
}

type Decision struct {
	Host             string     `json:"host"`
	Blocked          bool       `json:"blocked"`
	Reason           Reason     `json:"reason,omitempty"`
	MatchedDomain    string     `json:"matched_domain,omitempty"`
	Until            *time.Time `json:"until,omitempty"`
	RemainingSeconds *int       `json:"remaining_seconds,omitempty"`
}

// UsedSeconds sums the usage of every domain that matches entry.
func (in Input) UsedSeconds(entry string) int {
	total := 0
	for domain, secs := range in.Usage {
		if DomainMatches(domain, entry) {
			total += secs
		}
	}
	return total
}

func (in Input) sessionActive(now time.Time) bool {
	return in.Session != nil && now.Before(in.Session.EndsAt)
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}

// Evaluate decides whether host is blocked at now. Precedence: exhausted
// time limit, focus session, active schedule, always-blocked entry.
func Evaluate(in Input, host string, now time.Time) Decision {
	h := NormalizeDomain(host)
	d := Decision{Host: h}
	if h == "" {
		return d
	}

	var remaining *int
	for _, l := range in.Limits {
		if !DomainMatches(h, l.Domain) {
			continue
		}
		left := l.DailySeconds - in.UsedSeconds(l.Domain)
		if left <= 0 {
			until := nextMidnight(now)
			d.Blocked = true
			d.Reason = ReasonTimeLimit
			d.MatchedDomain = l.Domain
			d.Until = &until
			return d
		}
		if remaining == nil || left < *remaining {
			v := left
			remaining = &v
		}
	}
	d.RemainingSeconds = remaining

	site, ok := matchSite(h, in.Sites)
	if !ok {
		return d
	}

	if in.sessionActive(now) {
		until := in.Session.EndsAt
		return blocked(d, ReasonFocusSession, site.Domain, &until)
	}

	var windowEnd *time.Time
	for _, w := range in.Windows {
		if !w.Covers(h) {
			continue
		}
		if end, active := w.ActiveUntil(now); active {
			if windowEnd == nil || end.After(*windowEnd) {
				e := end
				windowEnd = &e
			}
		}
	}
	if windowEnd != nil {
		return blocked(d, ReasonSchedule, site.Domain, windowEnd)
	}

	if site.Always {
		return blocked(d, ReasonBlocklist, site.Domain, nil)
	}
	return d
}

func blocked(d Decision, reason Reason, matched string, until *time.Time) Decision {
	d.Blocked = true
	d.Reason = reason
	d.MatchedDomain = matched
	d.Until = until
	return d
}

func matchSite(host string, sites []Site) (Site, bool) {
	for _, s := range sites {
		if DomainMatches(host, s.Domain) {
			return s, true
		}
	}
	return Site{}, false
}

type Enforcement struct {
	Domain string     `json:"domain"`
	Reason Reason     `json:"reason"`
	Until  *time.Time `json:"until,omitempty"`
}

type LimitState struct {
	Domain           string `json:"domain"`
	LimitSeconds     int    `json:"limit_seconds"`
	UsedSeconds      int    `json:"used_seconds"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Exhausted        bool   `json:"exhausted"`
}

type SessionState struct {
	ID               string    `json:"id"`
	EndsAt           time.Time `json:"ends_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// Snapshot is the reconciled blocking state the extension enforces until
// the next push or poll. Version changes whenever the enforced set, limit
// usage or session changes. NextChange is the earliest moment the clock
// alone can change the state: a schedule boundary, the session end or the
// daily limit reset.
type Snapshot struct {
	Version     string        `json:"version"`
	GeneratedAt time.Time     `json:"generated_at"`
	NextChange  *time.Time    `json:"next_change,omitempty"`
	Session     *SessionState `json:"session,omitempty"`
	Enforced    []Enforcement `json:"enforced"`
	Limits      []LimitState  `json:"limits"`
}

// BuildSnapshot evaluates every configured domain at now.
func BuildSnapshot(in Input, now time.Time) Snapshot {
	snap := Snapshot{
		GeneratedAt: now,
		Enforced:    []Enforcement{},
		Limits:      []LimitState{},
	}

	if in.sessionActive(now) {
		snap.Session = &SessionState{
			ID:               in.Session.ID,
			EndsAt:           in.Session.EndsAt,
			RemainingSeconds: int(in.Session.EndsAt.Sub(now).Seconds()),
		}
	}

	seen := make(map[string]bool)
	enforce := func(domain string) {
		domain = NormalizeDomain(domain)
		if domain == "" || seen[domain] {
			return
		}
		seen[domain] = true
		if d := Evaluate(in, domain, now); d.Blocked {
			snap.Enforced = append(snap.Enforced, Enforcement{Domain: domain, Reason: d.Reason, Until: d.Until})
		}
	}
	for _, s := range in.Sites {
		enforce(s.Domain)
	}
	for _, l := range in.Limits {
		enforce(l.Domain)

		used := in.UsedSeconds(l.Domain)
		left := l.DailySeconds - used
		if left < 0 {
			left = 0
		}
		snap.Limits = append(snap.Limits, LimitState{
			Domain:           NormalizeDomain(l.Domain),
			LimitSeconds:     l.DailySeconds,
			UsedSeconds:      used,
			RemainingSeconds: left,
			Exhausted:        left == 0,
		})
	}

	sort.Slice(snap.Enforced, func(i, j int) bool { return snap.Enforced[i].Domain < snap.Enforced[j].Domain })
	sort.Slice(snap.Limits, func(i, j int) bool { return snap.Limits[i].Domain < snap.Limits[j].Domain })

	snap.Version = snapshotVersion(snap)
	snap.NextChange = nextChange(in, now)
	return snap
}

func nextChange(in Input, now time.Time) *time.Time {
	var next time.Time
	consider := func(t time.Time) {
		if t.After(now) && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}

	if in.sessionActive(now) {
		consider(in.Session.EndsAt)
	}
	for _, w := range in.Windows {
		if t, ok := w.NextBoundary(now); ok {
			consider(t)
		}
	}
	if len(in.Limits) > 0 {
		consider(nextMidnight(now))
	}

	if next.IsZero() {
		return nil
	}
	return &next
}

func snapshotVersion(s Snapshot) string {
	key := struct {
		Session  string        `json:"s,omitempty"`
		EndsAt   int64         `json:"e,omitempty"`
		Enforced []Enforcement `json:"f"`
		Limits   []LimitState  `json:"l"`
	}{Enforced: s.Enforced, Limits: s.Limits}
	if s.Session != nil {
		key.Session = s.Session.ID
		key.EndsAt = s.Session.EndsAt.Unix()
	}

	b, _ := json.Marshal(key)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
