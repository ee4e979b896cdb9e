// Package wsgateway bridges browser WebSocket viewers to the sessionstore
// registry's rfb.Client connections. It is the HTTP-facing half of the
// guacamole-style split: internal/sessionstore owns the RFB connection and
// framebuffer state (SharedSession's role in the teacher), wsgateway owns
// request routing, auth, and the WebSocket upgrade (handler.go's role).
package wsgateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjsadow/rfbgo/internal/middleware"
	"github.com/rjsadow/rfbgo/internal/sessionstore"
	"github.com/rjsadow/rfbgo/rfb"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Gateway sits behind its own auth middleware, which requires the
		// bearer token in the Authorization header of the upgrade request
		// (see ViewSession's route in cmd/rfbgatewayd), so origin checking
		// buys little here.
		return true
	},
}

// Handler serves both the session-creation REST endpoint and the viewer
// WebSocket upgrade endpoint.
type Handler struct {
	registry *sessionstore.Registry

	defaultConnectTimeout    time.Duration
	defaultDisconnectTimeout time.Duration
	defaultCompressionLevel  int
	defaultQualityLevel      int
}

// Config carries the RFB client defaults new sessions inherit when the
// create request doesn't override them (internal/config.Config's
// Connect/DisconnectTimeout, CompressionLevel, QualityLevel).
type Config struct {
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
	CompressionLevel  int
	QualityLevel      int
}

// NewHandler creates a Handler backed by registry.
func NewHandler(registry *sessionstore.Registry, cfg Config) *Handler {
	return &Handler{
		registry:                 registry,
		defaultConnectTimeout:    cfg.ConnectTimeout,
		defaultDisconnectTimeout: cfg.DisconnectTimeout,
		defaultCompressionLevel:  cfg.CompressionLevel,
		defaultQualityLevel:      cfg.QualityLevel,
	}
}

// createRequest is the JSON body for POST /api/sessions.
type createRequest struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
	Target           string `json:"target,omitempty"`
	ViewOnly         bool   `json:"view_only,omitempty"`
	Shared           bool   `json:"shared,omitempty"`
	CompressionLevel int    `json:"compression_level,omitempty"`
	QualityLevel     int    `json:"quality_level,omitempty"`
}

type createResponse struct {
	SessionID string `json:"session_id"`
}

// CreateSession handles POST /api/sessions: dials the target RFB server and
// registers a new tracked session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Host == "" || req.Port <= 0 || req.Port > 65535 {
		http.Error(w, "host and a valid port are required", http.StatusBadRequest)
		return
	}

	compression := req.CompressionLevel
	if compression == 0 {
		compression = h.defaultCompressionLevel
	}
	quality := req.QualityLevel
	if quality == 0 {
		quality = h.defaultQualityLevel
	}

	opts := sessionstore.CreateOptions{
		Host:     req.Host,
		Port:     req.Port,
		ViewOnly: req.ViewOnly,
		Shared:   req.Shared,
		Credentials: &rfb.Credentials{
			Username: req.Username,
			Password: req.Password,
			Target:   req.Target,
		},
		CompressionLevel:  compression,
		QualityLevel:      quality,
		ConnectTimeout:    h.defaultConnectTimeout,
		DisconnectTimeout: h.defaultDisconnectTimeout,
		ClientAddr:        r.RemoteAddr,
	}
	if user := middleware.GetUserFromContext(r.Context()); user != nil {
		opts.UserID = user.ID
	}

	session, err := h.registry.Create(r.Context(), opts)
	if err != nil {
		log.Printf("wsgateway: failed to create session for %s:%d: %v", req.Host, req.Port, err)
		http.Error(w, "failed to connect to remote host", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(createResponse{SessionID: session.ID})
}

// ViewSession handles GET /ws/rfb/{sessionID}: upgrades to a WebSocket and
// attaches the connection as a viewer of the named session. It blocks for
// the lifetime of the viewer, exactly as guacamole.Handler.ServeHTTP does.
func (h *Handler) ViewSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/ws/rfb/"), "/")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	session, ok := h.registry.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsgateway: failed to upgrade viewer for session %s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	viewOnly := r.URL.Query().Get("view_only") == "true"

	log.Printf("wsgateway: viewer joining session %s (viewOnly=%v)", sessionID, viewOnly)
	session.AddViewer(conn, viewOnly)
}
