package rfb

import (
	"sync"
)

// sendBufCap is the default capacity of the outbound coalescing buffer.
const sendBufCap = 10 * 1024

// ByteStream is the asynchronous receive/send queue that sits between a
// Transport and the protocol engine. Exactly one read may be pending at a
// time; receiveChunk wakes it as soon as enough bytes have arrived.
//
// All state is guarded by mu. cond.Wait is used instead of a channel so that
// "is a demand already pending" is a cheap flag check under the same lock
// that guards the buffer, keeping the single-pending-reader invariant exact.
type ByteStream struct {
	mu   sync.Mutex
	cond *sync.Cond

	rQ    []byte
	rQi   int // read index: bytes [0, rQi) already consumed
	rQlen int // bytes [0, rQlen) are valid

	waiting bool // true while a read is blocked in ensure()
	closed  bool

	transport Transport
	sendBuf   []byte
}

// NewByteStream wraps a Transport with the receive/send queue discipline.
func NewByteStream(t Transport) *ByteStream {
	b := &ByteStream{
		rQ:        make([]byte, 4096),
		transport: t,
		sendBuf:   make([]byte, 0, sendBufCap),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// receiveChunk appends an opaque chunk of bytes delivered by the transport.
// It implements the compaction/growth algorithm from spec.md §4.1: if the
// tail no longer fits, the unread portion is moved to offset 0; if the chunk
// still doesn't fit after that, the buffer grows to the smallest power of
// two length >= 8*(unread+len(chunk)).
func (b *ByteStream) receiveChunk(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if b.rQi == b.rQlen {
		b.rQi = 0
		b.rQlen = 0
	}

	m := len(chunk)
	if b.rQlen+m > len(b.rQ) {
		unread := b.rQlen - b.rQi
		copy(b.rQ, b.rQ[b.rQi:b.rQlen])
		b.rQi = 0
		b.rQlen = unread

		if b.rQlen+m > len(b.rQ) {
			grown := make([]byte, nextPow2(8*(b.rQlen+m)))
			copy(grown, b.rQ[:b.rQlen])
			b.rQ = grown
		}
	}

	copy(b.rQ[b.rQlen:], chunk)
	b.rQlen += m

	b.cond.Broadcast()
}

// close marks the stream closed and wakes any pending reader with
// ErrTransportClosed. Safe to call multiple times.
func (b *ByteStream) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
}

// available returns the number of unread bytes currently buffered.
func (b *ByteStream) available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rQlen - b.rQi
}

// ensure blocks the calling goroutine until at least n bytes are available,
// the stream closes, or a second concurrent demand is detected. Must be
// called with b.mu unlocked; it returns with b.mu held so callers can read
// directly out of rQ before unlocking.
func (b *ByteStream) ensure(n int) error {
	b.mu.Lock()
	if b.waiting {
		b.mu.Unlock()
		return ErrConcurrentRead
	}
	if b.rQlen-b.rQi >= n {
		return nil // caller holds b.mu
	}
	if b.closed {
		b.mu.Unlock()
		return ErrTransportClosed
	}

	b.waiting = true
	for b.rQlen-b.rQi < n && !b.closed {
		b.cond.Wait()
	}
	b.waiting = false

	if b.rQlen-b.rQi < n {
		// woke only because of close
		b.mu.Unlock()
		return ErrTransportClosed
	}
	return nil // caller holds b.mu
}

// wait is the non-suspending variant from spec.md §4.1: it reports whether
// fewer than n bytes are currently available, without blocking. The caller
// is expected to yield (e.g. return "need more data") when this is true.
func (b *ByteStream) wait(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rQlen-b.rQi < n
}

// Peek8 returns the next byte without consuming it.
func (b *ByteStream) Peek8() (byte, error) {
	if err := b.ensure(1); err != nil {
		return 0, err
	}
	defer b.mu.Unlock()
	return b.rQ[b.rQi], nil
}

// Shift8 consumes and returns the next byte.
func (b *ByteStream) Shift8() (byte, error) {
	if err := b.ensure(1); err != nil {
		return 0, err
	}
	defer b.mu.Unlock()
	v := b.rQ[b.rQi]
	b.rQi++
	return v, nil
}

// Shift16 consumes and returns the next two bytes as a big-endian uint16.
func (b *ByteStream) Shift16() (uint16, error) {
	if err := b.ensure(2); err != nil {
		return 0, err
	}
	defer b.mu.Unlock()
	v := uint16(b.rQ[b.rQi])<<8 | uint16(b.rQ[b.rQi+1])
	b.rQi += 2
	return v, nil
}

// Shift32 consumes and returns the next four bytes as a big-endian uint32.
func (b *ByteStream) Shift32() (uint32, error) {
	if err := b.ensure(4); err != nil {
		return 0, err
	}
	defer b.mu.Unlock()
	v := uint32(b.rQ[b.rQi])<<24 | uint32(b.rQ[b.rQi+1])<<16 | uint32(b.rQ[b.rQi+2])<<8 | uint32(b.rQ[b.rQi+3])
	b.rQi += 4
	return v, nil
}

// ShiftStr consumes n bytes and returns them as a latin1-decoded string
// (each byte becomes exactly one rune, never producing invalid UTF-8 errors
// midstream the way a naive []byte(string) reinterpretation of arbitrary
// bytes as UTF-8 would).
func (b *ByteStream) ShiftStr(n int) (string, error) {
	raw, err := b.ShiftBytes(n, false)
	if err != nil {
		return "", err
	}
	runes := make([]rune, len(raw))
	for i, c := range raw {
		runes[i] = rune(c)
	}
	return string(runes), nil
}

// ShiftBytes consumes n bytes. If copy is true the returned slice is a copy
// safe to retain; otherwise it aliases the internal buffer and is only
// valid until the next receiveChunk/compaction.
func (b *ByteStream) ShiftBytes(n int, copyOut bool) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if err := b.ensure(n); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()
	out := b.rQ[b.rQi : b.rQi+n]
	b.rQi += n
	if copyOut {
		cp := make([]byte, n)
		copy(cp, out)
		return cp, nil
	}
	return out, nil
}

// PeekBytes returns n bytes without consuming them.
func (b *ByteStream) PeekBytes(n int, copyOut bool) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if err := b.ensure(n); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()
	out := b.rQ[b.rQi : b.rQi+n]
	if copyOut {
		cp := make([]byte, n)
		copy(cp, out)
		return cp, nil
	}
	return out, nil
}

// SkipBytes consumes and discards n bytes.
func (b *ByteStream) SkipBytes(n int) error {
	if n == 0 {
		return nil
	}
	if err := b.ensure(n); err != nil {
		return err
	}
	b.rQi += n
	b.mu.Unlock()
	return nil
}

// --- send side ---

// push8 appends a single byte to the send buffer, auto-flushing first if it
// would overflow capacity.
func (b *ByteStream) push8(v byte) error {
	return b.pushBytes([]byte{v})
}

func (b *ByteStream) push16(v uint16) error {
	return b.pushBytes([]byte{byte(v >> 8), byte(v)})
}

func (b *ByteStream) push32(v uint32) error {
	return b.pushBytes([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func (b *ByteStream) pushString(s string) error {
	return b.pushBytes([]byte(s))
}

// pushBytes writes p into the coalescing send buffer. A push that would
// overflow capacity auto-flushes first; a push larger than capacity is
// split into capacity-sized frames and transmitted individually.
func (b *ByteStream) pushBytes(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(p) > 0 {
		room := sendBufCap - len(b.sendBuf)
		if room == 0 {
			if err := b.flushLocked(); err != nil {
				return err
			}
			room = sendBufCap
		}
		n := len(p)
		if n > room {
			n = room
		}
		b.sendBuf = append(b.sendBuf, p[:n]...)
		p = p[n:]

		if len(b.sendBuf) == sendBufCap {
			if err := b.flushLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flush transmits the accumulated send buffer as a single transport message.
func (b *ByteStream) flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *ByteStream) flushLocked() error {
	if len(b.sendBuf) == 0 {
		return nil
	}
	out := make([]byte, len(b.sendBuf))
	copy(out, b.sendBuf)
	b.sendBuf = b.sendBuf[:0]
	return b.transport.Send(out)
}
