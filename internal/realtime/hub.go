// Package realtime pushes blocking-state snapshots to connected extensions
// over WebSocket whenever a user's rules, session or usage change.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/focusguard/backend/internal/blocking"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
	publishBuffer  = 256

	// how often snapshots whose NextChange has passed are rebuilt
	refreshInterval = 5 * time.Second
)

var ErrHubStopped = errors.New("realtime hub stopped")

// SnapshotSource builds the current snapshot for a user.
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID string) (*blocking.Snapshot, error)
}

type Message struct {
	Type     string             `json:"type"` // "state", "error"
	Snapshot *blocking.Snapshot `json:"snapshot,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type Hub struct {
	source   SnapshotSource
	upgrader websocket.Upgrader

	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	publish    chan string
	done       chan struct{}
	mu         sync.RWMutex

	// pushes in flight per user; dirty marks a publish that arrived meanwhile
	inflight map[string]bool
	dirty    map[string]bool
	pushMu   sync.Mutex

	// NextChange of the last snapshot sent to each user
	due          map[string]time.Time
	dueMu        sync.Mutex
	refreshEvery time.Duration
	now          func() time.Time
}

func NewHub(source SnapshotSource, allowedOrigins []string) *Hub {
	h := &Hub{
		source:     source,
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan string, publishBuffer),
		done:       make(chan struct{}),
		inflight:   make(map[string]bool),
		dirty:      make(map[string]bool),

		due:          make(map[string]time.Time),
		refreshEvery: refreshInterval,
		now:          time.Now,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return CheckOrigin(r, allowedOrigins)
		},
	}
	return h
}

// Publish schedules a snapshot push to every connection of userID. It never
// blocks; when the queue is full the update is dropped and clients catch up
// on their next poll.
func (h *Hub) Publish(userID string) {
	select {
	case h.publish <- userID:
	default:
		slog.Warn("Realtime publish queue full, dropping update", "user_id", userID)
	}
}

// Run processes registrations and publishes until ctx is cancelled, then
// closes every connection. Users whose snapshot has reached its NextChange
// get a fresh one without anything being published.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case <-ticker.C:
			h.refreshDue(ctx)

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()
			slog.Info("Client registered", "user_id", client.UserID, "conn_id", client.ID)
			go h.push(ctx, client.UserID)

		case client := <-h.unregister:
			h.removeClient(client)
			slog.Info("Client unregistered", "user_id", client.UserID, "conn_id", client.ID)

		case userID := <-h.publish:
			if h.connected(userID) {
				go h.push(ctx, userID)
			}
		}
	}
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) connected(userID string) bool {
	return h.Connections(userID) > 0
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) refreshDue(ctx context.Context) {
	now := h.now()

	var users []string
	h.dueMu.Lock()
	for userID, at := range h.due {
		if !at.After(now) {
			users = append(users, userID)
			delete(h.due, userID)
		}
	}
	h.dueMu.Unlock()

	for _, userID := range users {
		if h.connected(userID) {
			slog.Debug("Refreshing snapshot at scheduled change", "user_id", userID)
			go h.push(ctx, userID)
		}
	}
}

func (h *Hub) setDue(userID string, next *time.Time) {
	h.dueMu.Lock()
	defer h.dueMu.Unlock()
	if next == nil {
		delete(h.due, userID)
		return
	}
	h.due[userID] = *next
}

// push sends a fresh snapshot to userID's clients. Concurrent requests for
// the same user collapse into one extra round.
func (h *Hub) push(ctx context.Context, userID string) {
	h.pushMu.Lock()
	if h.inflight[userID] {
		h.dirty[userID] = true
		h.pushMu.Unlock()
		return
	}
	h.inflight[userID] = true
	h.pushMu.Unlock()

	for {
		h.deliver(userID, h.buildMessage(ctx, userID))

		h.pushMu.Lock()
		if h.dirty[userID] {
			delete(h.dirty, userID)
			h.pushMu.Unlock()
			continue
		}
		delete(h.inflight, userID)
		h.pushMu.Unlock()
		return
	}
}

func (h *Hub) buildMessage(ctx context.Context, userID string) []byte {
	msg := Message{Type: "state"}
	snap, err := h.source.Snapshot(ctx, userID)
	if err != nil {
		slog.Error("Failed to build snapshot", "error", err, "user_id", userID)
		msg = Message{Type: "error", Error: "state unavailable"}
	} else {
		msg.Snapshot = snap
		h.setDue(userID, snap.NextChange)
	}

	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal realtime message", "error", err)
		return nil
	}
	return b
}

func (h *Hub) deliver(userID string, message []byte) {
	if message == nil {
		return
	}

	var slow []*Client
	h.mu.RLock()
	for client := range h.clients[userID] {
		select {
		case client.Send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("Dropping slow realtime client", "user_id", userID, "conn_id", c.ID)
		h.removeClient(c)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[c.UserID]
	if !set[c] {
		return
	}
	delete(set, c)
	close(c.Send)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
		h.setDue(c.UserID, nil)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, set := range h.clients {
		for c := range set {
			close(c.Send)
		}
		delete(h.clients, userID)
	}
}

// ServeWS upgrades the request and attaches the connection to userID. The
// caller has already authenticated the request.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		UserID: userID,
		ID:     uuid.New().String(),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return ErrHubStopped
	}

	go client.WritePump()
	go client.ReadPump()
	return nil
}

// CheckOrigin accepts browser connections only from the configured origins.
// Requests without an Origin header come from non-browser clients and are
// allowed; "*" allows everything.
func CheckOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin)
	return false
}
