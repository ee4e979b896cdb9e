package rfb

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// state is the connection's position in the RFB handshake/normal-operation
// state machine (spec.md §4.2).
type state int

const (
	stateDisconnected state = iota
	stateProtocolVersion
	stateSecurity
	stateAuthentication
	stateSecurityResult
	stateClientInit
	stateServerInit
	stateNormal
)

// Credentials carries whatever a chosen security type needs. Fields not
// required by the negotiated type are ignored.
type Credentials struct {
	Username string
	Password string
	Target   string // VeNCrypt/Plain inner target, XVP target
}

// Configuration controls a Client's behavior (spec.md §6).
type Configuration struct {
	Credentials  *Credentials
	Shared       bool
	RepeaterID   string
	WSProtocols  []string

	ViewOnly          bool
	QualityLevel      int // 0-9, Tight JPEG quality
	CompressionLevel  int // 0-9, Tight zlib level
	ShowDotCursor     bool

	// DisconnectTimeout bounds how long Disconnect, after closing the
	// transport, waits for the read pump to observe the close (spec.md §7).
	DisconnectTimeout time.Duration
}

func (c Configuration) disconnectTimeout() time.Duration {
	if c.DisconnectTimeout > 0 {
		return c.DisconnectTimeout
	}
	return 3 * time.Second
}

// Client is a single RFB connection: handshake state machine, framebuffer
// decode loop, and outward event/render surfaces. One Client goroutine (the
// "read driver") owns all protocol state; public Send* methods only ever
// write to the ByteStream's coalescing send buffer, which is safe for
// concurrent callers.
type Client struct {
	cfg      Configuration
	handler  EventHandler
	renderer Renderer
	bs       *ByteStream
	transport Transport

	mu    sync.Mutex
	state state
	err   error

	serverVersion string

	fbWidth, fbHeight int
	pixelFormat       PixelFormat
	desktopName       string

	serverSupportsContinuousUpdates bool
	serverSupportsFence              bool
	extendedClipboardCaps            extendedClipboardCaps
	qemuExtKeyEventSupported          bool
	xvpVersion                        uint8
	xvpReady                          bool

	zrleInflate *resumableInflate
	tightZlib   [4]*resumableInflate
	ra2cipher   *ra2Cipher
	jpegHuffmanCache []byte
	jpegQuantCache   []byte

	pointerLimiter *rate.Limiter

	done chan struct{}
	once sync.Once
}

// NewClient constructs a Client around an already-established Transport. The
// handshake does not start until Connect is called.
func NewClient(t Transport, cfg Configuration, handler EventHandler, renderer Renderer) *Client {
	if handler == nil {
		handler = EmptyEventHandler{}
	}
	c := &Client{
		cfg:       cfg,
		handler:   handler,
		renderer:  renderer,
		transport: t,
		bs:        NewByteStream(t),
		state:     stateDisconnected,
		// ~60Hz cap on outbound pointer events, matching noVNC's throttle.
		pointerLimiter: rate.NewLimiter(rate.Every(17*time.Millisecond), 1),
		done:           make(chan struct{}),
	}
	return c
}

// Connect starts the read-pump and engine goroutines and runs the handshake.
// It returns once the connection reaches the Normal state or the handshake
// fails.
func (c *Client) Connect() error {
	handshakeErr := make(chan error, 1)

	go c.readPump()
	go func() { handshakeErr <- c.runHandshake() }()

	err := <-handshakeErr
	if err != nil {
		c.fail(err)
		return err
	}

	go c.engineLoop()
	return nil
}

// readPump is the sole goroutine reading from Transport. It exists
// separately from the engine loop so a server that pushes data faster than
// the engine can decode it never blocks the socket read — the ByteStream
// buffer, not the TCP/WS read, absorbs the backlog.
func (c *Client) readPump() {
	for {
		chunk, err := c.transport.ReadMessage()
		if len(chunk) > 0 {
			c.bs.receiveChunk(chunk)
		}
		if err != nil {
			c.bs.close()
			c.onTransportClosed(err)
			return
		}
	}
}

// engineLoop runs the Normal-phase message dispatch (protocol.go) until the
// stream closes or a protocol violation occurs.
func (c *Client) engineLoop() {
	for {
		if err := c.dispatchOne(); err != nil {
			c.fail(err)
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (c *Client) onTransportClosed(err error) {
	c.mu.Lock()
	wasNormal := c.state == stateNormal
	c.mu.Unlock()
	c.once.Do(func() {
		close(c.done)
		clean := err == nil
		c.handler.OnDisconnect(clean && wasNormal)
	})
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.once.Do(func() {
		close(c.done)
		c.handler.OnDisconnect(false)
	})
	_ = c.transport.Close()
}

// Disconnect initiates a clean shutdown: it closes the transport and waits
// up to cfg.DisconnectTimeout for the read pump to observe the close before
// returning, per spec.md §7's bounded-wait teardown.
func (c *Client) Disconnect() error {
	closeErr := c.transport.Close()
	select {
	case <-c.done:
	case <-time.After(c.cfg.disconnectTimeout()):
	}
	return closeErr
}

// Err returns the terminal error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) setState(s state) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) getState() state {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// --- outward-facing send API; each encodes a message and pushes it onto the
// ByteStream's coalescing send buffer (messages.go), then flushes. ---

func (c *Client) SendPointerEvent(x, y int, buttonMask uint8) error {
	if c.cfg.ViewOnly {
		return nil
	}
	if !c.pointerLimiter.Allow() {
		return nil
	}
	return c.sendAndFlush(encodePointerEvent(x, y, buttonMask))
}

// SendKeyEvent sends a key press/release by X keysym. When the server has
// advertised QEMU extended key event support (pseudoEncodingQEMUExtendedKey),
// it is sent as a QEMUExtendedKeyEvent with no scancode (0) rather than the
// plain KeyEvent; see SendKeyEventWithScancode for callers that have one.
func (c *Client) SendKeyEvent(keysym uint32, down bool) error {
	if c.cfg.ViewOnly {
		return nil
	}
	if c.qemuKeyEventSupported() {
		return c.sendAndFlush(encodeQEMUExtendedKeyEvent(keysym, down, 0))
	}
	return c.sendAndFlush(encodeKeyEvent(keysym, down))
}

// SendKeyEventWithScancode behaves like SendKeyEvent but also carries the
// platform key's XT scancode, letting a QEMU-extended-key-event-capable
// server disambiguate keys scancode tables alone can't (AltGr, media keys).
// Falls back to the plain KeyEvent message otherwise, same as SendKeyEvent.
func (c *Client) SendKeyEventWithScancode(keysym uint32, down bool, keycode uint32) error {
	if c.cfg.ViewOnly {
		return nil
	}
	if c.qemuKeyEventSupported() {
		return c.sendAndFlush(encodeQEMUExtendedKeyEvent(keysym, down, keycode))
	}
	return c.sendAndFlush(encodeKeyEvent(keysym, down))
}

func (c *Client) qemuKeyEventSupported() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.qemuExtKeyEventSupported
}

// SendClientCutText sends the local clipboard text to the server. If the
// server negotiated the extended clipboard's Text format with Provide
// support, it is sent as an extended ClientCutText Provide action (spec.md
// §4.5); otherwise it falls back to plain latin-1 ClientCutText.
func (c *Client) SendClientCutText(text string) error {
	if c.cfg.ViewOnly {
		return nil
	}
	c.mu.Lock()
	caps := c.extendedClipboardCaps
	c.mu.Unlock()
	if caps.negotiated && caps.canProvide && caps.formats&clipboardFormatText != 0 {
		payload, err := encodeClipboardProvide(text)
		if err != nil {
			return err
		}
		return c.sendAndFlush(encodeExtendedClientCutText(payload))
	}
	return c.sendAndFlush(encodeClientCutText(text))
}

// SendSetDesktopSize requests the server resize the remote framebuffer to
// (w,h) on a single logical screen (spec.md §4.6).
func (c *Client) SendSetDesktopSize(w, h int, screenID uint32, flags uint32) error {
	if c.cfg.ViewOnly {
		return nil
	}
	return c.sendAndFlush(encodeSetDesktopSize(uint16(w), uint16(h), screenID, flags))
}

// SendClientXVP sends an XVP power-control request (shutdown/reboot/reset);
// op values follow spec.md §4.6.
func (c *Client) SendClientXVP(version, op uint8) error {
	return c.sendAndFlush(encodeClientXVP(version, op))
}

func (c *Client) SendFramebufferUpdateRequest(incremental bool, x, y, w, h int) error {
	return c.sendAndFlush(encodeFramebufferUpdateRequest(incremental, x, y, w, h))
}

func (c *Client) sendAndFlush(msg []byte) error {
	if err := c.bs.pushBytes(msg); err != nil {
		return err
	}
	return c.bs.flush()
}

func (c *Client) protoErr(format string, args ...any) error {
	return protoErrf(format, args...)
}
