package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/focusguard/backend/internal/middleware"
	"github.com/focusguard/backend/internal/realtime"
	"github.com/focusguard/backend/internal/services"
	"github.com/focusguard/backend/internal/storage"
)

const testSecret = "handler-test-secret"

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

type apiTest struct {
	t      *testing.T
	router http.Handler
	token  string
	log    *syncBuffer
}

// syncBuffer collects access log lines written from server goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newAPI(t *testing.T, limiter *middleware.RateLimiter) *apiTest {
	t.Helper()
	repo, err := storage.NewFileRepository(t.TempDir())
	if err != nil {
		t.Fatalf("repository: %v", err)
	}

	rules := services.NewRuleService(repo, nil)
	state := services.NewBlockStateService(repo, rules, time.UTC)
	hub := realtime.NewHub(state, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	sessions := services.NewSessionService(repo, hub)
	accessLog := &syncBuffer{}
	router := NewRouter(RouterConfig{
		Auth:        middleware.JWTAuth(testSecret),
		RateLimiter: limiter,
		AccessLog:   accessLog,
		Rules:       services.NewRuleService(repo, hub),
		Sessions:    sessions,
		Usage:       services.NewUsageService(repo, state, hub, 300),
		State:       state,
		Hub:         hub,
		Store:       repo,
	})

	token, err := middleware.NewToken(testSecret, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return &apiTest{t: t, router: router, token: token, log: accessLog}
}

func (a *apiTest) do(method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *apiTest) expect(rec *httptest.ResponseRecorder, code int, out any) envelope {
	a.t.Helper()
	if rec.Code != code {
		a.t.Fatalf("status = %d, want %d: %s", rec.Code, code, rec.Body.String())
	}
	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			a.t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
		}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			a.t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func TestHealth(t *testing.T) {
	api := newAPI(t, nil)
	rec := api.do(http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" || body["database"] != "up" {
		t.Errorf("body = %v", body)
	}
}

func TestUnauthenticated(t *testing.T) {
	api := newAPI(t, nil)
	api.token = ""
	api.expect(api.do(http.MethodGet, "/api/sites", nil, nil), http.StatusUnauthorized, nil)
}

func TestSitesAndCheck(t *testing.T) {
	api := newAPI(t, nil)

	var site struct {
		ID     string `json:"id"`
		Domain string `json:"domain"`
	}
	api.expect(api.do(http.MethodPost, "/api/sites", map[string]any{"domain": "https://www.Reddit.com/", "always": true}, nil), http.StatusCreated, &site)
	if site.Domain != "reddit.com" {
		t.Fatalf("domain = %q", site.Domain)
	}

	api.expect(api.do(http.MethodPost, "/api/sites", map[string]any{"domain": "reddit.com"}, nil), http.StatusConflict, nil)
	env := api.expect(api.do(http.MethodPost, "/api/sites", map[string]any{"domain": "bad domain"}, nil), http.StatusBadRequest, nil)
	if env.Errors["domain"] == "" {
		t.Errorf("validation errors = %v", env.Errors)
	}

	var sites []map[string]any
	api.expect(api.do(http.MethodGet, "/api/sites", nil, nil), http.StatusOK, &sites)
	if len(sites) != 1 {
		t.Errorf("sites = %v", sites)
	}

	var check struct {
		Decision struct {
			Blocked bool   `json:"blocked"`
			Reason  string `json:"reason"`
		} `json:"decision"`
		BlockPage *struct {
			Title string `json:"title"`
		} `json:"block_page"`
	}
	api.expect(api.do(http.MethodGet, "/api/check?url=https://old.reddit.com/r/golang", nil, nil), http.StatusOK, &check)
	if !check.Decision.Blocked || check.Decision.Reason != "blocklist" || check.BlockPage == nil {
		t.Errorf("check = %+v", check)
	}

	api.expect(api.do(http.MethodGet, "/api/check", nil, nil), http.StatusBadRequest, nil)

	api.expect(api.do(http.MethodDelete, "/api/sites/"+site.ID, nil, nil), http.StatusOK, nil)
	api.expect(api.do(http.MethodDelete, "/api/sites/"+site.ID, nil, nil), http.StatusNotFound, nil)
}

func TestLimitsAndUsage(t *testing.T) {
	api := newAPI(t, nil)

	var limit struct {
		ID string `json:"id"`
	}
	api.expect(api.do(http.MethodPut, "/api/limits", map[string]any{"domain": "youtube.com", "daily_minutes": 1}, nil), http.StatusOK, &limit)
	api.expect(api.do(http.MethodPut, "/api/limits", map[string]any{"domain": "youtube.com", "daily_minutes": 0}, nil), http.StatusBadRequest, nil)

	var report struct {
		Decision struct {
			Blocked bool   `json:"blocked"`
			Reason  string `json:"reason"`
		} `json:"decision"`
	}
	api.expect(api.do(http.MethodPost, "/api/usage", map[string]any{"url": "https://youtube.com/watch", "seconds": 60}, nil), http.StatusOK, &report)
	if report.Decision.Reason != "time_limit" {
		t.Errorf("after 60s of a 1 minute limit: %+v", report.Decision)
	}
	api.expect(api.do(http.MethodPost, "/api/usage", map[string]any{"url": "https://youtube.com", "seconds": 301}, nil), http.StatusBadRequest, nil)
	bad := api.expect(api.do(http.MethodPost, "/api/usage", map[string]any{"domain": "not a domain!!", "seconds": 5}, nil), http.StatusBadRequest, nil)
	if bad.Errors["domain"] == "" {
		t.Errorf("malformed domain errors = %v", bad.Errors)
	}

	var sum struct {
		TotalSeconds int `json:"total_seconds"`
	}
	api.expect(api.do(http.MethodGet, "/api/usage", nil, nil), http.StatusOK, &sum)
	if sum.TotalSeconds != 60 {
		t.Errorf("total = %d", sum.TotalSeconds)
	}
	api.expect(api.do(http.MethodGet, "/api/usage?day=yesterday", nil, nil), http.StatusBadRequest, nil)

	api.expect(api.do(http.MethodDelete, "/api/limits/"+limit.ID, nil, nil), http.StatusOK, nil)
	api.expect(api.do(http.MethodDelete, "/api/limits/"+limit.ID, nil, nil), http.StatusNotFound, nil)
}

func TestSchedulesAndBlockPage(t *testing.T) {
	api := newAPI(t, nil)

	var sched struct {
		ID      string `json:"id"`
		Enabled bool   `json:"enabled"`
	}
	body := map[string]any{"name": "Work", "days": []int{1, 2, 3, 4, 5}, "start": "09:00", "end": "17:00"}
	api.expect(api.do(http.MethodPost, "/api/schedules", body, nil), http.StatusCreated, &sched)
	if !sched.Enabled {
		t.Error("schedule should default to enabled")
	}

	body["enabled"] = false
	api.expect(api.do(http.MethodPut, "/api/schedules/"+sched.ID, body, nil), http.StatusOK, &sched)
	if sched.Enabled {
		t.Error("schedule still enabled after update")
	}
	api.expect(api.do(http.MethodPut, "/api/schedules/missing", body, nil), http.StatusNotFound, nil)
	api.expect(api.do(http.MethodDelete, "/api/schedules/"+sched.ID, nil, nil), http.StatusOK, nil)

	var page struct {
		Title string `json:"title"`
	}
	api.expect(api.do(http.MethodGet, "/api/block-page", nil, nil), http.StatusOK, &page)
	if page.Title == "" {
		t.Error("default block page has no title")
	}
	api.expect(api.do(http.MethodPut, "/api/block-page", map[string]any{"title": "Go outside"}, nil), http.StatusOK, &page)
	if page.Title != "Go outside" {
		t.Errorf("title = %q", page.Title)
	}
}

func TestSessions(t *testing.T) {
	api := newAPI(t, nil)

	api.expect(api.do(http.MethodGet, "/api/sessions/active", nil, nil), http.StatusNotFound, nil)

	var sess struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	api.expect(api.do(http.MethodPost, "/api/sessions", map[string]any{"duration_minutes": 25}, nil), http.StatusCreated, &sess)
	api.expect(api.do(http.MethodPost, "/api/sessions", map[string]any{"duration_minutes": 25}, nil), http.StatusConflict, nil)
	api.expect(api.do(http.MethodPost, "/api/sessions", map[string]any{"duration_minutes": 500}, nil), http.StatusBadRequest, nil)
	api.expect(api.do(http.MethodGet, "/api/sessions/active", nil, nil), http.StatusOK, nil)

	api.expect(api.do(http.MethodPost, "/api/sessions/"+sess.ID+"/end", nil, nil), http.StatusOK, &sess)
	if sess.Status != "cancelled" {
		t.Errorf("status = %q", sess.Status)
	}
	api.expect(api.do(http.MethodPost, "/api/sessions/"+sess.ID+"/end", nil, nil), http.StatusConflict, nil)

	var list []map[string]any
	api.expect(api.do(http.MethodGet, "/api/sessions?limit=5", nil, nil), http.StatusOK, &list)
	if len(list) != 1 {
		t.Errorf("sessions = %v", list)
	}
	api.expect(api.do(http.MethodGet, "/api/sessions?limit=zero", nil, nil), http.StatusBadRequest, nil)
}

func TestStateETag(t *testing.T) {
	api := newAPI(t, nil)

	rec := api.do(http.MethodGet, "/api/state", nil, nil)
	var snap struct {
		Version string `json:"version"`
	}
	api.expect(rec, http.StatusOK, &snap)
	etag := rec.Header().Get("ETag")
	if etag != `"`+snap.Version+`"` {
		t.Fatalf("ETag = %q, version = %q", etag, snap.Version)
	}

	rec = api.do(http.MethodGet, "/api/state", nil, map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("conditional GET: status %d", rec.Code)
	}

	api.expect(api.do(http.MethodPost, "/api/sites", map[string]any{"domain": "x.com", "always": true}, nil), http.StatusCreated, nil)
	rec = api.do(http.MethodGet, "/api/state", nil, map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusOK {
		t.Fatalf("after change: status %d", rec.Code)
	}
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`*`, true},
		{`"abd"`, false},
		{``, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, `"abc"`); got != tt.want {
			t.Errorf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestRateLimited(t *testing.T) {
	api := newAPI(t, middleware.NewRateLimiter(0.01, 2))

	for i := 0; i < 2; i++ {
		api.expect(api.do(http.MethodGet, "/api/sites", nil, nil), http.StatusOK, nil)
	}
	rec := api.do(http.MethodGet, "/api/sites", nil, nil)
	api.expect(rec, http.StatusTooManyRequests, nil)
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestQueryTokenOnlyOnWebSocketUpgrade(t *testing.T) {
	api := newAPI(t, nil)
	token := api.token
	api.token = ""

	rec := api.do(http.MethodGet, "/api/state?access_token="+token, nil, nil)
	api.expect(rec, http.StatusUnauthorized, nil)

	srv := httptest.NewServer(api.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?access_token=" + url.QueryEscape(token)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Type != "state" {
		t.Errorf("type = %q, want state", msg.Type)
	}
}

func TestAccessLogRedactsToken(t *testing.T) {
	api := newAPI(t, nil)
	token := api.token
	api.token = ""

	api.do(http.MethodGet, "/api/state?access_token="+token+"&verbose=1", nil, nil)

	srv := httptest.NewServer(api.router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?access_token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(api.log.String(), "/api/ws") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	logged := api.log.String()
	if !strings.Contains(logged, "/api/ws") || !strings.Contains(logged, "/api/state") {
		t.Fatalf("access log missing requests:\n%s", logged)
	}
	if strings.Contains(logged, token) {
		t.Fatalf("access log leaks the token:\n%s", logged)
	}
	if !strings.Contains(logged, "verbose=1") {
		t.Errorf("access log dropped unrelated query params:\n%s", logged)
	}
}

func TestRedactRequest(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/api/ws", "/api/ws"},
		{"/api/ws?access_token=secret", "/api/ws?access_token=REDACTED"},
		{"/api/usage?day=2024-01-01", "/api/usage?day=2024-01-01"},
		{"/api/ws?a=1&access_token=secret", "/api/ws?a=1&access_token=REDACTED"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.target, nil)
		got := redactRequest(req)
		if got.RequestURI != tt.want {
			t.Errorf("redactRequest(%q).RequestURI = %q, want %q", tt.target, got.RequestURI, tt.want)
		}
		if req.RequestURI != tt.target {
			t.Errorf("original request modified: %q", req.RequestURI)
		}
	}
}
