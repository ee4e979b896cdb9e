package rfb

// decodeRRE reads a background color followed by numSubRects colored
// subrectangles (grounded on go-vnc's RREncoding/RRERect.Read: a uint32
// subrect count, one bytesPerPixel background color, then per subrect a
// color plus four uint16 geometry fields).
func (c *Client) decodeRRE(r rectangle) error {
	n, err := c.bs.Shift32()
	if err != nil {
		return err
	}
	bg, err := c.readPixel()
	if err != nil {
		return err
	}
	if err := c.renderer.FillRect(r.x, r.y, r.w, r.h, bg); err != nil {
		return err
	}

	for i := uint32(0); i < n; i++ {
		color, err := c.readPixel()
		if err != nil {
			return err
		}
		sx, err := c.bs.Shift16()
		if err != nil {
			return err
		}
		sy, err := c.bs.Shift16()
		if err != nil {
			return err
		}
		sw, err := c.bs.Shift16()
		if err != nil {
			return err
		}
		sh, err := c.bs.Shift16()
		if err != nil {
			return err
		}
		if err := c.renderer.FillRect(r.x+int(sx), r.y+int(sy), int(sw), int(sh), color); err != nil {
			return err
		}
	}
	return nil
}
