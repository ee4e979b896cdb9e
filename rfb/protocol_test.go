package rfb

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// pipeServer drives the server side of an RFB handshake over a net.Pipe,
// offering None security and a fixed ServerInit, then idles. This exercises
// Client.Connect/runHandshake end to end rather than calling individual
// state-machine steps directly.
func pipeServer(t *testing.T, conn net.Conn, width, height uint16) {
	t.Helper()
	go func() {
		conn.Write([]byte("RFB 003.008\n"))

		greeting := make([]byte, 12)
		if _, err := readFullConn(conn, greeting); err != nil {
			return
		}

		conn.Write([]byte{1, 1}) // one security type: None
		chosen := make([]byte, 1)
		if _, err := readFullConn(conn, chosen); err != nil {
			return
		}

		conn.Write([]byte{0, 0, 0, 0}) // SecurityResult OK

		clientInit := make([]byte, 1)
		if _, err := readFullConn(conn, clientInit); err != nil {
			return
		}

		serverInit := make([]byte, 2+2+16+4)
		binary.BigEndian.PutUint16(serverInit[0:2], width)
		binary.BigEndian.PutUint16(serverInit[2:4], height)
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
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
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

type recordingHandler struct {
	EmptyEventHandler
	connected   chan struct{}
	desktopName string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{connected: make(chan struct{}, 1)}
}

func (h *recordingHandler) OnConnect() {
	select {
	case h.connected <- struct{}{}:
	default:
	}
}

func (h *recordingHandler) OnDesktopName(name string) { h.desktopName = name }

func TestClientConnect_NoneSecurityReachesNormalState(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	pipeServer(t, serverConn, 1024, 768)

	renderer := &recordingRenderer{}
	handler := newRecordingHandler()
	client := NewClient(NewTCPTransport(clientConn), Configuration{Credentials: &Credentials{}}, handler, renderer)

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case <-handler.connected:
	case <-time.After(time.Second):
		t.Fatal("OnConnect was never called")
	}

	if client.getState() != stateNormal {
		t.Fatalf("state = %v, want stateNormal", client.getState())
	}
	if renderer.resizedW != 1024 || renderer.resizedH != 768 {
		t.Fatalf("renderer resized to (%d,%d), want (1024,768)", renderer.resizedW, renderer.resizedH)
	}
}

func TestClientConnect_RejectsUnsupportedSecurityTypes(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		serverConn.Write([]byte("RFB 003.008\n"))
		greeting := make([]byte, 12)
		if _, err := readFullConn(serverConn, greeting); err != nil {
			return
		}
		// Offer only a security type the client doesn't implement.
		serverConn.Write([]byte{1, 99})
	}()

	client := NewClient(NewTCPTransport(clientConn), Configuration{}, nil, &recordingRenderer{})

	err := client.Connect()
	if err == nil {
		t.Fatal("Connect() expected error for an unsupported-only security offer")
	}
}
