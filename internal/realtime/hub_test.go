package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/focusguard/backend/internal/blocking"
)

type countingSource struct {
	calls atomic.Int64
}

func (s *countingSource) Snapshot(ctx context.Context, userID string) (*blocking.Snapshot, error) {
	n := s.calls.Add(1)
	return &blocking.Snapshot{Version: fmt.Sprintf("%s-%d", userID, n)}, nil
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(&countingSource{}, []string{"chrome-extension://abc"})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r, r.URL.Query().Get("user")); err != nil {
			t.Logf("serve ws: %v", err)
		}
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitConnections(t *testing.T, hub *Hub, user string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Connections(user) != want {
		if time.Now().After(deadline) {
			t.Fatalf("connections for %s = %d, want %d", user, hub.Connections(user), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubSendsSnapshotOnConnect(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "alice")

	msg := readMessage(t, conn)
	if msg.Type != "state" || msg.Snapshot == nil || !strings.HasPrefix(msg.Snapshot.Version, "alice-") {
		t.Fatalf("initial message = %+v", msg)
	}
}

func TestHubPublishTargetsUser(t *testing.T) {
	hub, srv := startHub(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	readMessage(t, alice)
	readMessage(t, bob)
	waitConnections(t, hub, "alice", 1)

	hub.Publish("alice")
	msg := readMessage(t, alice)
	if msg.Type != "state" || !strings.HasPrefix(msg.Snapshot.Version, "alice-") {
		t.Fatalf("published message = %+v", msg)
	}

	bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := bob.ReadMessage(); err == nil {
		t.Fatal("bob received a push meant for alice")
	}
}

func TestHubRefreshRequest(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "carol")
	readMessage(t, conn)

	b, _ := json.Marshal(map[string]string{"type": "refresh"})
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "state" {
		t.Fatalf("refresh reply = %+v", msg)
	}
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "dave")
	readMessage(t, conn)
	waitConnections(t, hub, "dave", 1)

	conn.Close()
	waitConnections(t, hub, "dave", 0)

	// publishing to a user with no connections is a no-op
	hub.Publish("dave")
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"no origin header", "", nil, true},
		{"listed", "chrome-extension://abc", []string{"chrome-extension://abc"}, true},
		{"listed with spaces", "https://app.example.com", []string{" https://app.example.com "}, true},
		{"wildcard", "https://evil.example", []string{"*"}, true},
		{"not listed", "https://evil.example", []string{"chrome-extension://abc"}, false},
		{"nothing configured", "https://evil.example", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := CheckOrigin(r, tt.allowed); got != tt.want {
				t.Errorf("CheckOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

// clockSource flips its snapshot once its clock reaches boundary, the way a
// schedule window opening changes the enforced set.
type clockSource struct {
	mu       sync.Mutex
	now      time.Time
	boundary time.Time
	calls    atomic.Int64
}

func (s *clockSource) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *clockSource) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *clockSource) Snapshot(ctx context.Context, userID string) (*blocking.Snapshot, error) {
	s.calls.Add(1)
	now := s.Now()
	if now.Before(s.boundary) {
		next := s.boundary
		return &blocking.Snapshot{Version: "closed", GeneratedAt: now, NextChange: &next}, nil
	}
	return &blocking.Snapshot{Version: "open", GeneratedAt: now}, nil
}

func serveHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHubPushesWhenNextChangePasses(t *testing.T) {
	start := time.Date(2024, time.January, 1, 8, 59, 0, 0, time.UTC)
	src := &clockSource{now: start, boundary: start.Add(time.Minute)}

	hub := NewHub(src, nil)
	hub.refreshEvery = 10 * time.Millisecond
	hub.now = src.Now

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	srv := serveHub(t, hub)

	conn := dial(t, srv, "erin")
	if msg := readMessage(t, conn); msg.Snapshot == nil || msg.Snapshot.Version != "closed" {
		t.Fatalf("initial message = %+v", msg)
	}

	time.Sleep(100 * time.Millisecond)
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("snapshot rebuilt %d times before the boundary", n)
	}

	src.advance(time.Minute)
	msg := readMessage(t, conn)
	if msg.Snapshot == nil || msg.Snapshot.Version != "open" {
		t.Fatalf("message after boundary = %+v", msg)
	}

	// the new snapshot has no NextChange, so nothing more is scheduled
	time.Sleep(100 * time.Millisecond)
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("snapshot rebuilt %d times, want 2", n)
	}
}

func TestHubServeWSAfterStop(t *testing.T) {
	hub := NewHub(&countingSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()

	select {
	case <-hub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	errc := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errc <- hub.ServeWS(w, r, "frank")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		defer conn.Close()
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrHubStopped) {
			t.Fatalf("ServeWS error = %v, want ErrHubStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeWS blocked after the hub stopped")
	}
}

func TestHubShutdownReleasesClients(t *testing.T) {
	hub := NewHub(&countingSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := serveHub(t, hub)

	conn := dial(t, srv, "gina")
	readMessage(t, conn)
	waitConnections(t, hub, "gina", 1)

	cancel()
	<-hub.Done()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection still open after hub stopped")
	} else if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		t.Fatal("server did not close the connection after hub stopped")
	}
	waitConnections(t, hub, "gina", 0)
}
