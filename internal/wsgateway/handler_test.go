package wsgateway

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjsadow/rfbgo/internal/sessionstore"
)

// fakeRFBServer is the wsgateway-side copy of sessionstore's test helper: a
// minimal RFB peer that completes the handshake with None security and then
// idles, just enough for sessionstore.Registry.Create to succeed.
func fakeRFBServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		conn.Write([]byte("RFB 003.008\n"))
		greeting := make([]byte, 12)
		if _, err := readFull(conn, greeting); err != nil {
			return
		}
		conn.Write([]byte{1, 1})
		chosen := make([]byte, 1)
		if _, err := readFull(conn, chosen); err != nil {
			return
		}
		conn.Write([]byte{0, 0, 0, 0})
		clientInit := make([]byte, 1)
		if _, err := readFull(conn, clientInit); err != nil {
			return
		}

		serverInit := make([]byte, 2+2+16+4)
		binary.BigEndian.PutUint16(serverInit[0:2], 800)
		binary.BigEndian.PutUint16(serverInit[2:4], 600)
		serverInit[4] = 32
		serverInit[5] = 24
		serverInit[7] = 1
		binary.BigEndian.PutUint16(serverInit[8:10], 255)
		binary.BigEndian.PutUint16(serverInit[10:12], 255)
		binary.BigEndian.PutUint16(serverInit[12:14], 255)
		serverInit[14] = 16
		serverInit[15] = 8
		conn.Write(serverInit)

		buf := make([]byte, 4096)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	return ln
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestCreateSession_RejectsMissingHost(t *testing.T) {
	h := NewHandler(sessionstore.NewRegistry(nil), Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewBufferString(`{"port": 5900}`))
	w := httptest.NewRecorder()

	h.CreateSession(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCreateSession_RejectsWrongMethod(t *testing.T) {
	h := NewHandler(sessionstore.NewRegistry(nil), Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w := httptest.NewRecorder()

	h.CreateSession(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestCreateSession_Succeeds(t *testing.T) {
	ln := fakeRFBServer(t)
	defer ln.Close()
	addr := ln.Addr().(*net.TCPAddr)

	h := NewHandler(sessionstore.NewRegistry(nil), Config{ConnectTimeout: 2 * time.Second})

	body, _ := json.Marshal(map[string]any{
		"host": "127.0.0.1",
		"port": addr.Port,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.CreateSession(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp createResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected non-empty session id")
	}
}

func TestViewSession_NotFound(t *testing.T) {
	h := NewHandler(sessionstore.NewRegistry(nil), Config{})

	srv := httptest.NewServer(http.HandlerFunc(h.ViewSession))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws/rfb/nonexistent"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial error for nonexistent session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		status := -1
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestViewSession_AttachesViewer(t *testing.T) {
	ln := fakeRFBServer(t)
	defer ln.Close()
	addr := ln.Addr().(*net.TCPAddr)

	registry := sessionstore.NewRegistry(nil)
	session, err := registry.Create(context.Background(), sessionstore.CreateOptions{
		Host:           "127.0.0.1",
		Port:           addr.Port,
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer session.Close()

	h := NewHandler(registry, Config{})
	srv := httptest.NewServer(http.HandlerFunc(h.ViewSession))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws/rfb/" + session.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if len(msg) == 0 {
		t.Fatal("expected a non-empty bootstrap message")
	}
}
