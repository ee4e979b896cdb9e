package sessionstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjsadow/rfbgo/internal/db"
	"github.com/rjsadow/rfbgo/rfb"
)

// Input opcodes sent by a browser viewer over its WebSocket connection.
// These mirror rfb/messages.go's manual binary layout, just addressed to
// the gateway instead of the remote RFB server.
const (
	inputPointer = 1
	inputKey     = 2
	inputCutText = 3
)

// CreateOptions describes a new gateway-mediated RFB connection.
type CreateOptions struct {
	Host              string
	Port              int
	Credentials       *rfb.Credentials
	ViewOnly          bool
	Shared            bool
	CompressionLevel  int
	QualityLevel      int
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration

	UserID     string
	ClientAddr string
}

// Session is a single gateway-mediated RFB connection: exactly one
// rfb.Client dialed to the remote server, fanned out to any number of
// browser viewers through a broadcastRenderer. This is the sessionstore
// analogue of internal/guacamole's SharedSession, but it owns an rfb.Client
// instead of a raw guacd TCP socket.
type Session struct {
	ID        string
	Host      string
	Port      int
	ViewOnly  bool
	StartedAt time.Time

	client   *rfb.Client
	renderer *broadcastRenderer
	registry *Registry

	conn net.Conn

	closeOnce sync.Once
	done      chan struct{}
	endReason string

	activityMu   sync.Mutex
	lastActivity time.Time
}

// touch stamps the session as active just now, so CloseIdle won't reap it.
func (s *Session) touch() {
	s.activityMu.Lock()
	s.lastActivity = time.Now()
	s.activityMu.Unlock()
}

// idleSince reports how long it has been since the last viewer attached or
// sent input, for Registry.CloseIdle to compare against the configured
// idle timeout.
func (s *Session) idleSince() time.Duration {
	s.activityMu.Lock()
	last := s.lastActivity
	s.activityMu.Unlock()
	return time.Since(last)
}

// sessionEventHandler adapts the session's lifecycle onto rfb.EventHandler.
// Most events just log; OnDisconnect tears the session down so dead
// connections don't linger in the registry.
type sessionEventHandler struct {
	rfb.EmptyEventHandler
	session *Session
}

func (h *sessionEventHandler) OnDisconnect(clean bool) {
	reason := "server closed connection"
	if clean {
		reason = "clean disconnect"
	}
	h.session.closeWithReason(reason)
}

func (h *sessionEventHandler) OnServerVerification(kind string, publicKey []byte) {
	if h.session.registry.database == nil {
		return
	}
	hostPort := fmt.Sprintf("%s:%d", h.session.Host, h.session.Port)
	existing, err := h.session.registry.database.GetHostKey(hostPort)
	if err != nil {
		log.Printf("sessionstore: host key lookup failed for %s: %v", hostPort, err)
		return
	}
	fingerprint := fmt.Sprintf("%x", publicKey)
	if existing != nil && existing.Fingerprint != fingerprint {
		log.Printf("sessionstore: host key for %s changed since first seen %s (kind=%s)", hostPort, existing.FirstSeenAt, kind)
	}
	if err := h.session.registry.database.UpsertHostKey(&db.HostKey{
		HostPort:    hostPort,
		Kind:        kind,
		Fingerprint: fingerprint,
	}); err != nil {
		log.Printf("sessionstore: failed to persist host key for %s: %v", hostPort, err)
	}
}

// closeWithReason tears down the session once, recording reason for the
// audit log.
func (s *Session) closeWithReason(reason string) {
	s.closeOnce.Do(func() {
		s.endReason = reason
		close(s.done)
		s.renderer.closeAll()
		s.conn.Close()
		if s.registry.database != nil {
			if err := s.registry.database.RecordSessionEnd(s.ID, time.Now(), reason); err != nil {
				log.Printf("sessionstore: failed to record session end for %s: %v", s.ID, err)
			}
		}
		s.registry.remove(s.ID)
	})
}

// Close tears down the session: disconnects the RFB client and drops every
// attached viewer.
func (s *Session) Close() {
	s.client.Disconnect()
	s.closeWithReason("closed by gateway")
}

// Client returns the underlying rfb.Client, e.g. so callers can send input
// outside the viewer path (not used by wsgateway, but kept symmetrical with
// the rest of the surface).
func (s *Session) Client() *rfb.Client {
	return s.client
}

// Done returns a channel closed when the session has torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// AddViewer registers a browser WebSocket connection as a viewer of this
// session and blocks until it disconnects, exactly like
// guacamole.SharedSession.AddClient. viewOnly forces input from this viewer
// to be dropped even if the underlying session is not itself view-only
// (e.g. a supervisor sharing read access to someone else's session).
func (s *Session) AddViewer(conn *websocket.Conn, viewOnly bool) {
	v := &viewer{
		conn:     conn,
		viewOnly: viewOnly || s.ViewOnly,
		done:     make(chan struct{}),
	}

	select {
	case <-s.done:
		return
	default:
	}

	s.touch()
	if err := s.renderer.addViewer(v); err != nil {
		log.Printf("sessionstore %s: failed to bootstrap viewer: %v", s.ID, err)
		return
	}

	go s.readViewerInput(v)

	select {
	case <-v.done:
	case <-s.done:
	}

	remaining := s.renderer.removeViewer(v)
	log.Printf("sessionstore %s: viewer removed (remaining=%d)", s.ID, remaining)
}

// readViewerInput decodes input frames from a non-view-only viewer and
// forwards them to the remote RFB server via the Client's Send* methods.
// View-only viewers' frames are read and discarded so the WebSocket read
// loop still detects their disconnect.
func (s *Session) readViewerInput(v *viewer) {
	defer v.close()

	for {
		messageType, data, err := v.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && !errors.Is(err, io.EOF) {
				log.Printf("sessionstore %s: viewer read error: %v", s.ID, err)
			}
			return
		}
		if messageType != websocket.BinaryMessage || v.viewOnly || len(data) == 0 {
			continue
		}
		s.touch()
		if err := s.dispatchInput(data); err != nil {
			log.Printf("sessionstore %s: failed to forward viewer input: %v", s.ID, err)
		}
	}
}

func (s *Session) dispatchInput(data []byte) error {
	switch data[0] {
	case inputPointer:
		if len(data) < 6 {
			return fmt.Errorf("sessionstore: short pointer input frame")
		}
		x := int(binary.BigEndian.Uint16(data[1:3]))
		y := int(binary.BigEndian.Uint16(data[3:5]))
		return s.client.SendPointerEvent(x, y, data[5])
	case inputKey:
		if len(data) < 6 {
			return fmt.Errorf("sessionstore: short key input frame")
		}
		keysym := binary.BigEndian.Uint32(data[1:5])
		return s.client.SendKeyEvent(keysym, data[5] != 0)
	case inputCutText:
		if len(data) < 5 {
			return fmt.Errorf("sessionstore: short cuttext input frame")
		}
		n := binary.BigEndian.Uint32(data[1:5])
		if int(n) != len(data)-5 {
			return fmt.Errorf("sessionstore: cuttext length mismatch")
		}
		return s.client.SendClientCutText(string(data[5:]))
	default:
		return fmt.Errorf("sessionstore: unknown input opcode %d", data[0])
	}
}
