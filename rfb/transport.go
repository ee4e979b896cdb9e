package rfb

import (
	"net"

	"github.com/gorilla/websocket"
)

// Transport is the message-oriented duplex channel the core needs (spec.md
// §6): deliver opaque byte chunks, accept sends, and support a close.
// ReadMessage blocks until the next chunk or a terminal error; io.EOF or any
// error from a closed underlying connection ends the read driver.
type Transport interface {
	ReadMessage() ([]byte, error)
	Send(data []byte) error
	Close() error
}

// tcpTransport adapts a raw net.Conn (the common case: dialing a VNC server
// directly) to Transport. Each ReadMessage call reads whatever is currently
// available up to a fixed chunk size, mirroring the "opaque chunks" model —
// there is no message framing at the TCP level, only byte availability.
type tcpTransport struct {
	conn net.Conn
	buf  []byte
}

// NewTCPTransport wraps conn (already connected) as a Transport.
func NewTCPTransport(conn net.Conn) Transport {
	return &tcpTransport{conn: conn, buf: make([]byte, 65536)}
}

func (t *tcpTransport) ReadMessage() ([]byte, error) {
	n, err := t.conn.Read(t.buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, t.buf[:n])
		if err == nil {
			return chunk, nil
		}
		return chunk, err
	}
	return nil, err
}

func (t *tcpTransport) Send(data []byte) error {
	_, err := t.conn.Write(data)
	return err
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

// wsTransport adapts a *websocket.Conn (e.g. a VNC server fronted by a
// websockify-style proxy) to Transport. Binary frames carry the raw RFB
// byte stream, matching noVNC's own deployment model.
type wsTransport struct {
	conn *websocket.Conn
}

// NewWSTransport wraps an established websocket connection as a Transport.
func NewWSTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) Send(data []byte) error {
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
