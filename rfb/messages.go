package rfb

// Client-to-server message types (spec.md §4.6).
const (
	msgSetPixelFormat           = 0
	msgSetEncodings             = 2
	msgFramebufferUpdateRequest = 3
	msgKeyEvent                 = 4
	msgPointerEvent             = 5
	msgClientCutText            = 6
	msgEnableContinuousUpdates  = 150
	msgClientXVP                = 250
	msgSetDesktopSize           = 251
	msgClientFence              = 248
	msgQEMUExtendedKeyEvent     = 255
)

// Encoding identifiers (spec.md §4.7/§4.8), both real and pseudo.
const (
	encodingRaw                = 0
	encodingCopyRect           = 1
	encodingRRE                = 2
	encodingHextile            = 5
	encodingTight              = 7
	encodingTRLE               = 15
	encodingZRLE               = 16
	encodingJPEG               = 21 // standalone JPEG rects (decode_jpeg.go)
	encodingTightPNG           = -260

	pseudoEncodingDesktopSize       = -223
	pseudoEncodingExtendedDesktop   = -308
	pseudoEncodingCursor            = -239
	pseudoEncodingLastRect          = -224
	pseudoEncodingContinuousUpdates = -313
	pseudoEncodingFence             = -312
	pseudoEncodingExtendedClipboard = -1978847935
	pseudoEncodingQEMUExtendedKey   = -258
	pseudoEncodingDesktopName       = -307
	pseudoEncodingXvp               = -309
	pseudoEncodingVMwareCursor      = 0x574d5664
	pseudoEncodingCompressLevelBase = -256 // -256..-247 (0..9)
	pseudoEncodingQualityLevelBase  = -32  // -32..-23 (0..9)
)

func encodeSetPixelFormat(pf PixelFormat) []byte {
	out := make([]byte, 20)
	out[0] = msgSetPixelFormat
	copy(out[4:20], pf.marshal())
	return out
}

// defaultEncodingList is the set the client advertises via SetEncodings,
// ordered from most to least preferred: CopyRect first, then (at the depth-24
// pixel format this client always negotiates) Tight, TightPNG, ZRLE, JPEG,
// Hextile, RRE, with Raw last as the universal fallback. Quality/compression
// pseudo-encodings follow the real encodings, then the capability
// pseudo-encodings, per spec.md §4.6.
func defaultEncodingList(compressionLevel, qualityLevel int) []int32 {
	list := []int32{
		encodingCopyRect,
		encodingTight,
		encodingTightPNG,
		encodingZRLE,
		encodingJPEG,
		encodingHextile,
		encodingRRE,
		encodingRaw,
	}
	if qualityLevel >= 0 && qualityLevel <= 9 {
		list = append(list, int32(pseudoEncodingQualityLevelBase+qualityLevel))
	}
	if compressionLevel >= 0 && compressionLevel <= 9 {
		list = append(list, int32(pseudoEncodingCompressLevelBase+compressionLevel))
	}
	list = append(list,
		pseudoEncodingDesktopSize,
		pseudoEncodingLastRect,
		pseudoEncodingQEMUExtendedKey,
		pseudoEncodingExtendedDesktop,
		pseudoEncodingXvp,
		pseudoEncodingFence,
		pseudoEncodingContinuousUpdates,
		pseudoEncodingDesktopName,
		pseudoEncodingExtendedClipboard,
		pseudoEncodingVMwareCursor,
		pseudoEncodingCursor,
	)
	return list
}

func encodeSetEncodings(encodings []int32) []byte {
	out := make([]byte, 4, 4+4*len(encodings))
	out[0] = msgSetEncodings
	out[2] = byte(len(encodings) >> 8)
	out[3] = byte(len(encodings))
	for _, e := range encodings {
		u := uint32(e)
		out = append(out, byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	}
	return out
}

func encodeFramebufferUpdateRequest(incremental bool, x, y, w, h int) []byte {
	out := make([]byte, 10)
	out[0] = msgFramebufferUpdateRequest
	if incremental {
		out[1] = 1
	}
	put16(out[2:4], uint16(x))
	put16(out[4:6], uint16(y))
	put16(out[6:8], uint16(w))
	put16(out[8:10], uint16(h))
	return out
}

func encodeKeyEvent(keysym uint32, down bool) []byte {
	out := make([]byte, 8)
	out[0] = msgKeyEvent
	if down {
		out[1] = 1
	}
	put32(out[4:8], keysym)
	return out
}

func encodePointerEvent(x, y int, buttonMask uint8) []byte {
	out := make([]byte, 6)
	out[0] = msgPointerEvent
	out[1] = buttonMask
	put16(out[2:4], uint16(x))
	put16(out[4:6], uint16(y))
	return out
}

func encodeClientCutText(text string) []byte {
	raw := []byte(text)
	out := make([]byte, 8, 8+len(raw))
	out[0] = msgClientCutText
	put32(out[4:8], uint32(len(raw)))
	out = append(out, raw...)
	return out
}

// encodeExtendedClientCutText builds the extended-clipboard variant of
// ClientCutText: the length field is the two's complement of the payload
// size (spec.md §4.6), signaling to the server that payload is a
// flags-prefixed extended clipboard action rather than plain latin-1 text.
func encodeExtendedClientCutText(payload []byte) []byte {
	out := make([]byte, 8, 8+len(payload))
	out[0] = msgClientCutText
	put32(out[4:8], uint32(-int32(len(payload))))
	out = append(out, payload...)
	return out
}

// encodeQEMUExtendedKeyEvent builds the QEMU extended key event message,
// which carries the raw XT scancode alongside the keysym so a server that
// advertised pseudoEncodingQEMUExtendedKey can inject keys scancode-accurate
// (spec.md §4.6). keycode 0 tells the server no scancode is available.
func encodeQEMUExtendedKeyEvent(keysym uint32, down bool, keycode uint32) []byte {
	out := make([]byte, 12)
	out[0] = msgQEMUExtendedKeyEvent
	out[1] = 0
	if down {
		put16(out[2:4], 1)
	}
	put32(out[4:8], keysym)
	put32(out[8:12], qemuRFBKeycode(keycode))
	return out
}

// qemuRFBKeycode remaps an 0xE0-prefixed (extended) XT scancode into the
// single-byte form QEMU's rfbKeycode field expects; unprefixed scancodes pass
// through unchanged.
func qemuRFBKeycode(keycode uint32) uint32 {
	if keycode>>8 == 0xe0 {
		return (keycode & 0xff) | 0x80
	}
	return keycode
}

// encodeSetDesktopSize builds the single-screen SetDesktopSize request
// (spec.md §4.6): the server is expected to either resize to (w,h) or reply
// with an ExtendedDesktopSize rect reporting why it couldn't.
func encodeSetDesktopSize(w, h uint16, screenID, flags uint32) []byte {
	out := make([]byte, 24)
	out[0] = msgSetDesktopSize
	out[1] = 0
	put16(out[2:4], w)
	put16(out[4:6], h)
	out[6] = 1 // numScreens
	out[7] = 0
	put32(out[8:12], screenID)
	put16(out[12:14], 0)
	put16(out[14:16], 0)
	put16(out[16:18], w)
	put16(out[18:20], h)
	put32(out[20:24], flags)
	return out
}

// encodeClientXVP builds the XVP client request (spec.md §4.6): op 1 is
// shutdown, 2 is reboot, 3 is reset.
func encodeClientXVP(version, op uint8) []byte {
	return []byte{msgClientXVP, 0, version, op}
}

func encodeEnableContinuousUpdates(enable bool, x, y, w, h int) []byte {
	out := make([]byte, 10)
	out[0] = msgEnableContinuousUpdates
	if enable {
		out[1] = 1
	}
	put16(out[2:4], uint16(x))
	put16(out[4:6], uint16(y))
	put16(out[6:8], uint16(w))
	put16(out[8:10], uint16(h))
	return out
}

func encodeClientFence(flags uint32, payload []byte) []byte {
	out := make([]byte, 9, 9+len(payload))
	out[0] = msgClientFence
	put32(out[3:7], flags)
	out[7] = 0
	out[8] = byte(len(payload))
	out = append(out, payload...)
	return out
}

func put16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func put32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
