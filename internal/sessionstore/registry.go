// Package sessionstore tracks every live rfb.Client connection the gateway
// is mediating, keyed by session id. Exactly one Session owns one TCP
// connection to a remote RFB server; any number of browser viewers attach to
// it through internal/wsgateway.
package sessionstore

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rjsadow/rfbgo/internal/db"
	"github.com/rjsadow/rfbgo/rfb"
)

// Registry is a thread-safe map of session ID -> Session, mirroring
// internal/guacamole.SessionRegistry's GetOrCreate/remove shape but for
// gateway-initiated RFB connections (one Create call per session, no
// implicit reconnect-on-lookup).
type Registry struct {
	database *db.DB

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. database may be nil in tests that
// don't need host-key persistence or session auditing.
func NewRegistry(database *db.DB) *Registry {
	return &Registry{
		database: database,
		sessions: make(map[string]*Session),
	}
}

// Create dials the remote RFB server, runs the handshake, and registers the
// resulting Session under a new session id. It returns once the Client
// reaches the Normal protocol state (rfb.Client.Connect's contract) or the
// handshake fails.
func (r *Registry) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: dial %s: %w", addr, err)
	}

	id := uuid.NewString()
	renderer := newBroadcastRenderer()

	now := time.Now()
	session := &Session{
		ID:           id,
		Host:         opts.Host,
		Port:         opts.Port,
		ViewOnly:     opts.ViewOnly,
		StartedAt:    now,
		renderer:     renderer,
		registry:     r,
		conn:         conn,
		done:         make(chan struct{}),
		lastActivity: now,
	}

	cfg := rfb.Configuration{
		Credentials:       opts.Credentials,
		Shared:            opts.Shared,
		ViewOnly:          opts.ViewOnly,
		CompressionLevel:  opts.CompressionLevel,
		QualityLevel:      opts.QualityLevel,
		DisconnectTimeout: opts.DisconnectTimeout,
	}

	session.client = rfb.NewClient(rfb.NewTCPTransport(conn), cfg, &sessionEventHandler{session: session}, renderer)

	if err := session.client.Connect(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sessionstore: handshake with %s failed: %w", addr, err)
	}

	if r.database != nil {
		if err := r.database.RecordSessionStart(&db.SessionRecord{
			ID:         id,
			UserID:     opts.UserID,
			Host:       opts.Host,
			Port:       opts.Port,
			ClientAddr: opts.ClientAddr,
			ViewOnly:   opts.ViewOnly,
			StartedAt:  session.StartedAt,
		}); err != nil {
			session.Close()
			return nil, fmt.Errorf("sessionstore: failed to record session start: %w", err)
		}
	}

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	return session, nil
}

// Get returns the session registered under id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len reports how many sessions are currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll tears down every tracked session, e.g. during graceful shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// CloseIdle tears down every session with no attached viewer whose last
// activity is older than idleTimeout, mirroring the cleanup sweep the
// teacher ran on a cron interval against abandoned pod sessions.
func (r *Registry) CloseIdle(idleTimeout time.Duration) {
	if idleTimeout <= 0 {
		return
	}

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		if s.renderer.viewerCount() > 0 {
			continue
		}
		if s.idleSince() < idleTimeout {
			continue
		}
		log.Printf("sessionstore: closing idle session %s (idle for %s)", s.ID, s.idleSince())
		s.closeWithReason("idle timeout")
	}
}
