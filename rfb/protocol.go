package rfb

import (
	"fmt"
	"log"
	"strings"
)

// Security types (spec.md §4.3/§4.4). securityPreference below lists the
// order of preference the client applies when the server offers several.
const (
	secInvalid     = 0
	secNone        = 1
	secVNCAuth     = 2
	secRA2         = 5
	secRA2ne       = 6
	secTight       = 16
	secVeNCrypt    = 19
	secXVP         = 22
	secARD         = 30
	secMSLogonII   = 113
	secTightULogin = 129
)

var securityPreference = []byte{secVeNCrypt, secARD, secMSLogonII, secRA2ne, secTight, secVNCAuth, secXVP, secNone}

// runHandshake drives every pre-Normal state in order. It is called from its
// own goroutine by Connect and only returns once Normal is reached or an
// error terminates the connection.
func (c *Client) runHandshake() error {
	if c.cfg.RepeaterID != "" {
		if err := c.sendRepeaterID(); err != nil {
			return err
		}
	}
	if err := c.negotiateVersion(); err != nil {
		return err
	}
	secType, err := c.negotiateSecurity()
	if err != nil {
		return err
	}
	if err := c.authenticate(secType); err != nil {
		return err
	}
	if err := c.readSecurityResult(); err != nil {
		return err
	}
	if err := c.sendClientInit(); err != nil {
		return err
	}
	if err := c.readServerInit(); err != nil {
		return err
	}
	if err := c.postInit(); err != nil {
		return err
	}
	c.setState(stateNormal)
	c.handler.OnConnect()
	return nil
}

// rfbVersion33, rfbVersion37, rfbVersion38 are the versions this client
// understands, in ascending order.
const (
	rfbVersion33 = "003.003"
	rfbVersion37 = "003.007"
	rfbVersion38 = "003.008"
)

// sendRepeaterID sends the UltraVNC repeater (mode II) 250-byte, null-padded
// target ID ahead of the RFB handshake proper; repeaters use this to route
// the connection to the right inner VNC server before any protocol
// negotiation starts.
func (c *Client) sendRepeaterID() error {
	if err := c.bs.pushBytes(nullPad(c.cfg.RepeaterID, 250)); err != nil {
		return err
	}
	return c.bs.flush()
}

func (c *Client) negotiateVersion() error {
	c.setState(stateProtocolVersion)
	raw, err := c.bs.ShiftBytes(12, true)
	if err != nil {
		return err
	}
	greeting := string(raw)
	if !strings.HasPrefix(greeting, "RFB ") || len(greeting) != 12 {
		return protoErrf("malformed ProtocolVersion greeting %q", greeting)
	}
	serverVersion := greeting[4:11]

	reply := serverVersion
	switch serverVersion {
	case rfbVersion33, rfbVersion37, rfbVersion38:
	default:
		// Unknown/future version: negotiate down to the highest we know.
		reply = rfbVersion38
	}
	c.serverVersion = reply
	msg := "RFB " + reply + "\n"
	if err := c.bs.pushString(msg); err != nil {
		return err
	}
	return c.bs.flush()
}

func (c *Client) negotiateSecurity() (byte, error) {
	c.setState(stateSecurity)
	if c.serverVersion == rfbVersion33 {
		v, err := c.bs.Shift32()
		if err != nil {
			return 0, err
		}
		if v == secInvalid {
			reason, err := c.readLengthPrefixedString32()
			if err != nil {
				return 0, err
			}
			return 0, protoErrf("server refused connection: %s", reason)
		}
		return byte(v), nil
	}

	n, err := c.bs.Shift8()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		reason, err := c.readLengthPrefixedString32()
		if err != nil {
			return 0, err
		}
		return 0, protoErrf("server refused connection: %s", reason)
	}
	offered, err := c.bs.ShiftBytes(int(n), true)
	if err != nil {
		return 0, err
	}

	var chosen byte
	for _, pref := range securityPreference {
		for _, o := range offered {
			if o == pref {
				chosen = pref
			}
		}
		if chosen != 0 {
			break
		}
	}
	if chosen == 0 {
		return 0, fmt.Errorf("%w: no mutually supported security type in %v", ErrUnsupportedFeature, offered)
	}
	if err := c.bs.push8(chosen); err != nil {
		return 0, err
	}
	if err := c.bs.flush(); err != nil {
		return 0, err
	}
	return chosen, nil
}

func (c *Client) authenticate(secType byte) error {
	c.setState(stateAuthentication)
	switch secType {
	case secNone:
		return nil
	case secVNCAuth:
		return c.authVNC()
	case secTight:
		return c.authTight()
	case secVeNCrypt:
		return c.authVeNCrypt()
	case secARD:
		return c.authARD()
	case secMSLogonII:
		return c.authMSLogonII()
	case secRA2ne:
		return c.authRA2ne()
	case secXVP:
		return c.authXVP()
	default:
		return fmt.Errorf("%w: security type %d", ErrUnsupportedFeature, secType)
	}
}

func (c *Client) readSecurityResult() error {
	c.setState(stateSecurityResult)
	result, err := c.bs.Shift32()
	if err != nil {
		return err
	}
	if result == 0 {
		return nil
	}
	var reason string
	if c.serverVersion != rfbVersion33 {
		reason, err = c.readLengthPrefixedString32()
		if err != nil {
			return err
		}
	}
	c.handler.OnSecurityFailure(result, reason)
	return fmt.Errorf("%w: security handshake failed: %s", ErrAuthenticationFailed, reason)
}

func (c *Client) sendClientInit() error {
	c.setState(stateClientInit)
	shared := byte(0)
	if c.cfg.Shared {
		shared = 1
	}
	if err := c.bs.push8(shared); err != nil {
		return err
	}
	return c.bs.flush()
}

func (c *Client) readServerInit() error {
	c.setState(stateServerInit)
	w, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	h, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	pfRaw, err := c.bs.ShiftBytes(16, true)
	if err != nil {
		return err
	}
	name, err := c.readLengthPrefixedString32()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.fbWidth, c.fbHeight = int(w), int(h)
	c.pixelFormat = parsePixelFormat(pfRaw)
	c.desktopName = name
	c.mu.Unlock()

	c.renderer.Resize(int(w), int(h))
	c.handler.OnDesktopName(name)
	return nil
}

// postInit sends our preferred PixelFormat and encoding list, then issues
// the first (non-incremental, full-screen) framebuffer update request.
func (c *Client) postInit() error {
	pf := pixelFormatForDepth(24)
	c.mu.Lock()
	c.pixelFormat = pf
	w, h := c.fbWidth, c.fbHeight
	c.mu.Unlock()

	if err := c.bs.pushBytes(encodeSetPixelFormat(pf)); err != nil {
		return err
	}
	enc := defaultEncodingList(c.cfg.CompressionLevel, c.cfg.QualityLevel)
	if err := c.bs.pushBytes(encodeSetEncodings(enc)); err != nil {
		return err
	}
	if err := c.bs.flush(); err != nil {
		return err
	}
	return c.SendFramebufferUpdateRequest(false, 0, 0, w, h)
}

func (c *Client) readLengthPrefixedString32() (string, error) {
	n, err := c.bs.Shift32()
	if err != nil {
		return "", err
	}
	return c.bs.ShiftStr(int(n))
}

// --- Normal-phase dispatch ---

// Server-to-client message types.
const (
	smsgFramebufferUpdate      = 0
	smsgSetColorMapEntries     = 1
	smsgBell                   = 2
	smsgServerCutText          = 3
	smsgEndOfContinuousUpdates = 150
	smsgServerXVP              = 250
	smsgServerFence            = 248
)

// dispatchOne blocks for, reads, and fully processes exactly one
// server-to-client message.
func (c *Client) dispatchOne() error {
	msgType, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	switch msgType {
	case smsgFramebufferUpdate:
		return c.handleFramebufferUpdate()
	case smsgSetColorMapEntries:
		return c.handleSetColorMapEntries()
	case smsgBell:
		c.handler.OnBell()
		return nil
	case smsgServerCutText:
		return c.handleServerCutText()
	case smsgEndOfContinuousUpdates:
		c.mu.Lock()
		c.serverSupportsContinuousUpdates = true
		c.mu.Unlock()
		return nil
	case smsgServerFence:
		return c.handleServerFence()
	case smsgServerXVP:
		return c.handleServerXVP()
	default:
		return protoErrf("unsupported server message type %d", msgType)
	}
}

func (c *Client) handleServerXVP() error {
	if _, err := c.bs.Shift8(); err != nil { // padding
		return err
	}
	version, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	msg, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.xvpVersion = version
	c.xvpReady = msg == 1
	c.mu.Unlock()
	if msg != 1 {
		log.Printf("rfb: XVP init failed (version %d, msg %d)", version, msg)
	}
	return nil
}

func (c *Client) handleFramebufferUpdate() error {
	if _, err := c.bs.Shift8(); err != nil { // padding
		return err
	}
	n, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		if err := c.decodeOneRect(); err != nil {
			return err
		}
	}
	if c.renderer.Pending() {
		if err := c.renderer.Flush(); err != nil {
			return fmt.Errorf("%w: %v", ErrRenderError, err)
		}
	}
	return c.renderer.Flip()
}

func (c *Client) decodeOneRect() error {
	x, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	y, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	w, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	h, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	encRaw, err := c.bs.Shift32()
	if err != nil {
		return err
	}
	enc := int32(encRaw)

	switch enc {
	case pseudoEncodingDesktopSize:
		c.mu.Lock()
		c.fbWidth, c.fbHeight = int(w), int(h)
		c.mu.Unlock()
		c.renderer.Resize(int(w), int(h))
		return nil
	case pseudoEncodingLastRect:
		return nil
	case pseudoEncodingCursor:
		return c.decodeCursorPseudo(int(w), int(h))
	case pseudoEncodingExtendedClipboard:
		return c.decodeExtendedClipboardCapsRect(int(w))
	case pseudoEncodingExtendedDesktop:
		return c.decodeExtendedDesktopSizePseudo(int(x), int(y), int(w), int(h))
	case pseudoEncodingQEMUExtendedKey:
		c.mu.Lock()
		c.qemuExtKeyEventSupported = true
		c.mu.Unlock()
		return nil
	case pseudoEncodingDesktopName:
		return c.decodeDesktopNamePseudo()
	case pseudoEncodingVMwareCursor:
		return c.decodeVMwareCursorPseudo(int(w), int(h))
	}

	rect := rectangle{x: int(x), y: int(y), w: int(w), h: int(h)}
	switch enc {
	case encodingRaw:
		return c.decodeRaw(rect)
	case encodingCopyRect:
		return c.decodeCopyRect(rect)
	case encodingRRE:
		return c.decodeRRE(rect)
	case encodingHextile:
		return c.decodeHextile(rect)
	case encodingTRLE:
		return c.decodeZRLE(rect, false)
	case encodingZRLE:
		return c.decodeZRLE(rect, true)
	case encodingTight:
		return c.decodeTight(rect)
	case encodingTightPNG:
		return c.decodeTightPNG(rect)
	case encodingJPEG:
		return c.decodeJPEG(rect)
	default:
		return protoErrf("unsupported encoding %d", enc)
	}
}

// decodeExtendedDesktopSizePseudo applies a server-initiated or
// request-acknowledging framebuffer resize (spec.md §4.3). The rect header's
// x/y carry the change reason and result codes; w/h carry the new
// framebuffer size. The payload lists each screen's geometry, which this
// client has no multi-monitor surface to expose and so only consumes.
func (c *Client) decodeExtendedDesktopSizePseudo(reason, result, w, h int) error {
	numScreens, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	if _, err := c.bs.ShiftBytes(3, false); err != nil { // padding
		return err
	}
	if _, err := c.bs.ShiftBytes(int(numScreens)*16, false); err != nil {
		return err
	}

	if result != 0 {
		// Nonzero result means the resize was rejected or only partially
		// applied; no new geometry to adopt.
		return nil
	}
	c.mu.Lock()
	c.fbWidth, c.fbHeight = w, h
	c.mu.Unlock()
	c.renderer.Resize(w, h)
	return nil
}

// decodeDesktopNamePseudo applies a runtime desktop-name change, using the
// same length-prefixed UTF-8 layout ServerInit uses for the initial name.
func (c *Client) decodeDesktopNamePseudo() error {
	name, err := c.readLengthPrefixedString32()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.desktopName = name
	c.mu.Unlock()
	c.handler.OnDesktopName(name)
	return nil
}

// decodeVMwareCursorPseudo consumes the VMware cursor pseudo-encoding's
// payload: a one-byte cursor type, a reserved byte, and for an alpha cursor
// (type 0) w*h*4 bytes of RGBA with no separate bitmask, unlike RichCursor.
// Like decodeCursorPseudo, the bytes are only consumed; cursor rendering is
// outside this client's Renderer contract.
func (c *Client) decodeVMwareCursorPseudo(w, h int) error {
	cursorType, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	if _, err := c.bs.Shift8(); err != nil { // reserved
		return err
	}
	if cursorType != 0 || w == 0 || h == 0 {
		return nil
	}
	if _, err := c.bs.ShiftBytes(w*h*4, false); err != nil {
		return err
	}
	return nil
}

func (c *Client) handleSetColorMapEntries() error {
	if _, err := c.bs.Shift16(); err != nil { // first color
		return err
	}
	n, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	if _, err := c.bs.ShiftBytes(int(n)*6, false); err != nil {
		return err
	}
	return fmt.Errorf("%w: palette color maps are not supported (client always requests true-color)", ErrUnsupportedFeature)
}

func (c *Client) handleServerCutText() error {
	if _, err := c.bs.ShiftBytes(3, false); err != nil { // padding
		return err
	}
	rawLen, err := c.bs.Shift32()
	if err != nil {
		return err
	}
	signed := int32(rawLen)
	if signed < 0 {
		data, err := c.bs.ShiftBytes(int(-signed), true)
		if err != nil {
			return err
		}
		return c.handleExtendedServerCutText(data)
	}
	text, err := c.bs.ShiftStr(int(rawLen))
	if err != nil {
		return err
	}
	c.handler.OnClipboard(text)
	return nil
}

func (c *Client) handleExtendedServerCutText(data []byte) error {
	if len(data) < 4 {
		return protoErrf("extended clipboard message too short")
	}
	flags := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	rest := data[4:]

	switch {
	case flags&clipboardCapsBit != 0:
		sizes := make([]uint32, 0, 4)
		for i := 0; i+4 <= len(rest); i += 4 {
			sizes = append(sizes, uint32(rest[i])<<24|uint32(rest[i+1])<<16|uint32(rest[i+2])<<8|uint32(rest[i+3]))
		}
		c.mu.Lock()
		c.extendedClipboardCaps = parseExtendedClipboardCaps(flags, sizes)
		c.mu.Unlock()
		return c.sendClipboardCaps()
	case flags&clipboardProvideBit != 0:
		text, err := decodeExtendedClipboardProvide(rest)
		if err != nil {
			return err
		}
		c.handler.OnClipboard(text)
		return nil
	case flags&clipboardNotifyBit != 0:
		return nil
	default:
		return nil
	}
}

func (c *Client) handleServerFence() error {
	if _, err := c.bs.ShiftBytes(3, false); err != nil { // padding
		return err
	}
	flags, err := c.bs.Shift32()
	if err != nil {
		return err
	}
	n, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	payload, err := c.bs.ShiftBytes(int(n), true)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.serverSupportsFence = true
	c.mu.Unlock()

	const fenceRequestBit = 1 << 0
	if flags&fenceRequestBit != 0 {
		return c.sendAndFlush(encodeClientFence(flags&^fenceRequestBit, payload))
	}
	return nil
}

func (c *Client) decodeCursorPseudo(w, h int) error {
	if w == 0 && h == 0 {
		return nil
	}
	bpp := int(c.pixelFormat.BPP) / 8
	maskBytes := (w + 7) / 8 * h
	if _, err := c.bs.ShiftBytes(w*h*bpp, false); err != nil {
		return err
	}
	if _, err := c.bs.ShiftBytes(maskBytes, false); err != nil {
		return err
	}
	return nil
}

func (c *Client) decodeExtendedClipboardCapsRect(length int) error {
	data, err := c.bs.ShiftBytes(length, true)
	if err != nil {
		return err
	}
	return c.handleExtendedServerCutText(data)
}

