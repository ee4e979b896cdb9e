package sessionstore

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/rjsadow/rfbgo/internal/db/dbtest"
	"github.com/rjsadow/rfbgo/rfb"
)

// fakeRFBServer performs just enough of the RFB handshake (version
// negotiation, None security, ClientInit/ServerInit) for rfb.Client.Connect
// to reach the Normal state, then idles — no framebuffer updates are sent.
// This is the sessionstore-side analogue of testing guacamole.SharedSession
// against a fake guacd: a minimal fake peer instead of a mocked interface.
func fakeRFBServer(t *testing.T, width, height uint16) net.Listener {
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

		// One security type: None.
		conn.Write([]byte{1, 1})

		chosen := make([]byte, 1)
		if _, err := readFull(conn, chosen); err != nil {
			return
		}

		// SecurityResult: OK.
		conn.Write([]byte{0, 0, 0, 0})

		clientInit := make([]byte, 1)
		if _, err := readFull(conn, clientInit); err != nil {
			return
		}

		serverInit := make([]byte, 2+2+16+4)
		binary.BigEndian.PutUint16(serverInit[0:2], width)
		binary.BigEndian.PutUint16(serverInit[2:4], height)
		serverInit[4] = 32  // bpp
		serverInit[5] = 24  // depth
		serverInit[6] = 0   // big-endian
		serverInit[7] = 1   // true-color
		binary.BigEndian.PutUint16(serverInit[8:10], 255)
		binary.BigEndian.PutUint16(serverInit[10:12], 255)
		binary.BigEndian.PutUint16(serverInit[12:14], 255)
		serverInit[14] = 16
		serverInit[15] = 8
		serverInit[16] = 0
		// 3 bytes padding, then name length 0.
		conn.Write(serverInit)

		// Keep the connection open so postInit's writes (SetPixelFormat,
		// SetEncodings, FramebufferUpdateRequest) have somewhere to land.
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

func TestRegistry_CreateEstablishesSession(t *testing.T) {
	ln := fakeRFBServer(t, 800, 600)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	database := dbtest.NewTestDB(t)
	registry := NewRegistry(database)

	session, err := registry.Create(context.Background(), CreateOptions{
		Host:           "127.0.0.1",
		Port:           addr.Port,
		Credentials:    &rfb.Credentials{},
		ConnectTimeout: 2 * time.Second,
		UserID:         "u1",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer session.Close()

	if session.ID == "" {
		t.Fatal("session ID should not be empty")
	}
	if session.Host != "127.0.0.1" || session.Port != addr.Port {
		t.Fatalf("session host/port = %s:%d, want 127.0.0.1:%d", session.Host, session.Port, addr.Port)
	}

	got, ok := registry.Get(session.ID)
	if !ok || got != session {
		t.Fatal("Get() should return the created session")
	}
	if registry.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", registry.Len())
	}
}

func TestRegistry_CreateFailsOnUnreachableHost(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Create(context.Background(), CreateOptions{
		Host:           "127.0.0.1",
		Port:           1, // nothing listens on privileged port 1 in tests
		Credentials:    &rfb.Credentials{},
		ConnectTimeout: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("Create() expected error for unreachable host")
	}
}

func TestRegistry_CloseRemovesFromRegistry(t *testing.T) {
	ln := fakeRFBServer(t, 640, 480)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	database := dbtest.NewTestDB(t)
	registry := NewRegistry(database)

	session, err := registry.Create(context.Background(), CreateOptions{
		Host:           "127.0.0.1",
		Port:           addr.Port,
		Credentials:    &rfb.Credentials{},
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	session.Close()

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close in time")
	}

	if _, ok := registry.Get(session.ID); ok {
		t.Fatal("Get() should not find a closed session")
	}
}

func TestRegistry_CloseIdleClosesInactiveSessions(t *testing.T) {
	ln := fakeRFBServer(t, 640, 480)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	database := dbtest.NewTestDB(t)
	registry := NewRegistry(database)

	session, err := registry.Create(context.Background(), CreateOptions{
		Host:           "127.0.0.1",
		Port:           addr.Port,
		Credentials:    &rfb.Credentials{},
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	registry.CloseIdle(time.Hour)
	if _, ok := registry.Get(session.ID); !ok {
		t.Fatal("CloseIdle should not close a freshly created session")
	}

	session.activityMu.Lock()
	session.lastActivity = time.Now().Add(-time.Hour)
	session.activityMu.Unlock()

	registry.CloseIdle(time.Minute)

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle session did not close in time")
	}
	if _, ok := registry.Get(session.ID); ok {
		t.Fatal("Get() should not find an idled-out session")
	}
}
