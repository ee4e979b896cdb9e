package rfb

const (
	hextileRaw             = 1 << 0
	hextileBackground      = 1 << 1
	hextileForeground      = 1 << 2
	hextileAnySubrects     = 1 << 3
	hextileSubrectsColored = 1 << 4
)

// decodeHextile walks the rectangle in 16x16 tiles, left to right, top to
// bottom, short-circuiting to a raw tile when the raw bit is set and
// otherwise painting a background fill followed by zero or more colored
// subrectangles. background/foreground persist across tiles within this
// rectangle only (grounded on bigangryrobot's HextileEncoding.Read).
func (c *Client) decodeHextile(r rectangle) error {
	var background, foreground []byte

	for ty := 0; ty < r.h; ty += 16 {
		th := 16
		if ty+th > r.h {
			th = r.h - ty
		}
		for tx := 0; tx < r.w; tx += 16 {
			tw := 16
			if tx+tw > r.w {
				tw = r.w - tx
			}

			mask, err := c.bs.Shift8()
			if err != nil {
				return err
			}

			absX, absY := r.x+tx, r.y+ty

			if mask&hextileRaw != 0 {
				if err := c.decodeRaw(rectangle{x: absX, y: absY, w: tw, h: th}); err != nil {
					return err
				}
				continue
			}

			if mask&hextileBackground != 0 {
				background, err = c.readPixel()
				if err != nil {
					return err
				}
			}
			if background != nil {
				if err := c.renderer.FillRect(absX, absY, tw, th, background); err != nil {
					return err
				}
			}

			if mask&hextileForeground != 0 {
				foreground, err = c.readPixel()
				if err != nil {
					return err
				}
			}

			if mask&hextileAnySubrects == 0 {
				continue
			}

			numSubrects, err := c.bs.Shift8()
			if err != nil {
				return err
			}
			colored := mask&hextileSubrectsColored != 0

			for i := byte(0); i < numSubrects; i++ {
				color := foreground
				if colored {
					color, err = c.readPixel()
					if err != nil {
						return err
					}
				}
				xy, err := c.bs.Shift8()
				if err != nil {
					return err
				}
				wh, err := c.bs.Shift8()
				if err != nil {
					return err
				}
				subX := int(xy>>4) & 0xF
				subY := int(xy) & 0xF
				subW := int(wh>>4)&0xF + 1
				subH := int(wh)&0xF + 1
				if err := c.renderer.FillRect(absX+subX, absY+subY, subW, subH, color); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
