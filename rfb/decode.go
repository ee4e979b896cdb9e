package rfb

// rectangle is the (x,y,w,h) header common to every FramebufferUpdate
// rectangle, already parsed by decodeOneRect before a decode_*.go function is
// invoked.
type rectangle struct {
	x, y, w, h int
}

// bytesPerPixel returns the current negotiated pixel size in bytes.
func (c *Client) bytesPerPixel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.pixelFormat.BPP) / 8
}

// readPixel reads one pixel's worth of bytes and renders it back out as RGB
// (3 bytes), applying the negotiated PixelFormat's shifts/maxes. The client
// always negotiates TrueColor, so no color-map lookup path exists.
func (c *Client) readPixel() ([]byte, error) {
	bpp := c.bytesPerPixel()
	raw, err := c.bs.ShiftBytes(bpp, true)
	if err != nil {
		return nil, err
	}
	return c.decodePixel(raw), nil
}

// decodePixel converts bpp raw wire bytes into 3-byte RGB using the
// negotiated PixelFormat.
func (c *Client) decodePixel(raw []byte) []byte {
	c.mu.Lock()
	pf := c.pixelFormat
	c.mu.Unlock()

	var v uint32
	if pf.BigEndian {
		for _, b := range raw {
			v = v<<8 | uint32(b)
		}
	} else {
		for i := len(raw) - 1; i >= 0; i-- {
			v = v<<8 | uint32(raw[i])
		}
	}

	r := (v >> pf.RedShift) & uint32(pf.RedMax)
	g := (v >> pf.GreenShift) & uint32(pf.GreenMax)
	b := (v >> pf.BlueShift) & uint32(pf.BlueMax)

	return []byte{
		scaleChannel(r, pf.RedMax),
		scaleChannel(g, pf.GreenMax),
		scaleChannel(b, pf.BlueMax),
	}
}

// scaleChannel rescales a channel value from [0,max] to [0,255].
func scaleChannel(v uint32, max uint16) byte {
	if max == 0 {
		return 0
	}
	return byte((v * 255) / uint32(max))
}
