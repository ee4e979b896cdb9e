package rfb

// decodeCopyRect reads a source (x,y) and copies the already-rendered (w,h)
// region there onto the destination rectangle (grounded on go-vnc's
// CopyRectEncoding.Read: two big-endian uint16s, no pixel data).
func (c *Client) decodeCopyRect(r rectangle) error {
	srcX, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	srcY, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	return c.renderer.CopyImage(int(srcX), int(srcY), r.x, r.y, r.w, r.h)
}
