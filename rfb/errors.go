package rfb

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the protocol engine and the byte stream.
// Callers should use errors.Is to branch on these; most are wrapped with
// additional context via fmt.Errorf("...: %w", ErrX).
var (
	// ErrTransportClosed is returned by a blocked read when the transport
	// closes while a demand is pending, and by sends issued after close.
	ErrTransportClosed = errors.New("rfb: transport closed")

	// ErrConcurrentRead is returned when a second read is attempted while
	// one is already pending. At most one pending demand may exist.
	ErrConcurrentRead = errors.New("rfb: concurrent read on byte stream")

	// ErrProtocolViolation covers bad markers, out-of-range subencodings,
	// unknown message types, and malformed lengths.
	ErrProtocolViolation = errors.New("rfb: protocol violation")

	// ErrUnsupportedFeature covers security types, filters, and pixel
	// formats this client does not implement.
	ErrUnsupportedFeature = errors.New("rfb: unsupported feature")

	// ErrAuthenticationFailed covers a non-zero SecurityResult or an RA2ne
	// message whose EAX tag does not verify. The RA2ne handshake performs no
	// server hash check.
	ErrAuthenticationFailed = errors.New("rfb: authentication failed")

	// ErrDecoderError covers inflate failures and malformed JPEG segments.
	ErrDecoderError = errors.New("rfb: decoder error")

	// ErrRenderError is returned when a Renderer call reports a failure.
	ErrRenderError = errors.New("rfb: render error")
)

// ProtocolError wraps ErrProtocolViolation with a message, so the Is chain
// stays intact while callers still get a readable string.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "rfb: protocol violation: " + e.Msg }
func (e *ProtocolError) Unwrap() error { return ErrProtocolViolation }

func protoErrf(format string, args ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}
