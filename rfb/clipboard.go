package rfb

import (
	"bytes"
	"compress/zlib"
	"io"
)

// Extended clipboard pseudo-encoding action bits (spec.md §4.5).
const (
	clipboardCapsBit    = 1 << 24
	clipboardRequestBit = 1 << 25
	clipboardPeekBit    = 1 << 26
	clipboardNotifyBit  = 1 << 27
	clipboardProvideBit = 1 << 28

	clipboardFormatText = 1 << 0
)

// extendedClipboardCaps records which formats and actions the server
// advertised via the ServerCutText extended-clipboard variant.
type extendedClipboardCaps struct {
	negotiated  bool
	formats     uint32
	maxSizes    map[uint32]uint32
	canRequest  bool
	canPeek     bool
	canNotify   bool
	canProvide  bool
}

// parseExtendedClipboardCaps decodes the caps payload: a uint32 action/format
// flags word followed by one uint32 max-size per set format bit, ascending
// bit order.
func parseExtendedClipboardCaps(flags uint32, sizes []uint32) extendedClipboardCaps {
	c := extendedClipboardCaps{
		negotiated: true,
		formats:    flags & 0xFFFF,
		maxSizes:   make(map[uint32]uint32),
		canRequest: flags&clipboardRequestBit != 0,
		canPeek:    flags&clipboardPeekBit != 0,
		canNotify:  flags&clipboardNotifyBit != 0,
		canProvide: flags&clipboardProvideBit != 0,
	}
	i := 0
	for bit := uint32(1); bit <= 0xFFFF; bit <<= 1 {
		if flags&bit != 0 && i < len(sizes) {
			c.maxSizes[bit] = sizes[i]
			i++
		}
	}
	return c
}

// encodeExtendedClipboardProvide builds the zlib-compressed "provide" payload
// for one text format: a uint32 uncompressed length followed by the zlib
// stream of a length-prefixed, NUL-terminated UTF-8 text (spec.md §4.5 "(u32
// length, utf8-text with trailing NUL)"; length counts the text only).
func encodeExtendedClipboardProvide(text string) ([]byte, error) {
	raw := []byte(text)
	payload := make([]byte, 0, len(raw)+5)
	payload = append(payload, byte(len(raw)>>24), byte(len(raw)>>16), byte(len(raw)>>8), byte(len(raw)))
	payload = append(payload, raw...)
	payload = append(payload, 0x00)

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+buf.Len())
	out = append(out, byte(len(payload)>>24), byte(len(payload)>>16), byte(len(payload)>>8), byte(len(payload)))
	out = append(out, buf.Bytes()...)
	return out, nil
}

// encodeClipboardProvide builds the full flags-prefixed extended-clipboard
// Provide action for the Text format: a 4-byte flags word (Provide|Text)
// followed by encodeExtendedClipboardProvide's compressed payload. The
// result is the payload SendClientCutText wraps in an extended
// ClientCutText message.
func encodeClipboardProvide(text string) ([]byte, error) {
	inner, err := encodeExtendedClipboardProvide(text)
	if err != nil {
		return nil, err
	}
	flags := uint32(clipboardProvideBit) | clipboardFormatText
	out := make([]byte, 4, 4+len(inner))
	out[0] = byte(flags >> 24)
	out[1] = byte(flags >> 16)
	out[2] = byte(flags >> 8)
	out[3] = byte(flags)
	out = append(out, inner...)
	return out, nil
}

// ourClipboardMaxTextSize bounds the Text format max-size we advertise in
// our Caps response; the server is free to send larger Provide payloads
// anyway, this is advisory only per spec.md §4.5.
const ourClipboardMaxTextSize = 1 << 20

// encodeClipboardCaps builds the client's Caps response payload: every
// action this client supports (Caps, Request, Peek, Notify, Provide) and
// the Text format with its advertised max size (spec.md §4.5).
func encodeClipboardCaps() []byte {
	flags := uint32(clipboardCapsBit | clipboardRequestBit | clipboardPeekBit | clipboardNotifyBit | clipboardProvideBit) | clipboardFormatText
	out := make([]byte, 8)
	out[0] = byte(flags >> 24)
	out[1] = byte(flags >> 16)
	out[2] = byte(flags >> 8)
	out[3] = byte(flags)
	put32(out[4:8], ourClipboardMaxTextSize)
	return out
}

// sendClipboardCaps replies to a server's extended-clipboard Caps
// announcement with our own (spec.md §4.5).
func (c *Client) sendClipboardCaps() error {
	return c.sendAndFlush(encodeExtendedClientCutText(encodeClipboardCaps()))
}

// decodeExtendedClipboardProvide reverses encodeExtendedClipboardProvide for
// the text format, returning the first provided string.
func decodeExtendedClipboardProvide(data []byte) (string, error) {
	if len(data) < 4 {
		return "", protoErrf("extended clipboard provide payload too short")
	}
	zr, err := zlib.NewReader(bytes.NewReader(data[4:]))
	if err != nil {
		return "", err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", err
	}
	if len(raw) < 4 {
		return "", protoErrf("extended clipboard provide inner payload too short")
	}
	n := int(raw[0])<<24 | int(raw[1])<<16 | int(raw[2])<<8 | int(raw[3])
	if 4+n > len(raw) {
		return "", protoErrf("extended clipboard provide length out of range")
	}
	return string(raw[4 : 4+n]), nil
}
