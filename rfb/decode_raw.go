package rfb

// decodeRaw reads w*h pixels, row-major, and blits them as RGBA (grounded on
// go-vnc's RawEncoding.Read, which loops y then x reading bytesPerPixel
// bytes per Color).
func (c *Client) decodeRaw(r rectangle) error {
	if r.w == 0 || r.h == 0 {
		return nil
	}
	rgba := make([]byte, r.w*r.h*4)
	for y := 0; y < r.h; y++ {
		for x := 0; x < r.w; x++ {
			rgb, err := c.readPixel()
			if err != nil {
				return err
			}
			off := (y*r.w + x) * 4
			rgba[off] = rgb[0]
			rgba[off+1] = rgb[1]
			rgba[off+2] = rgb[2]
			rgba[off+3] = 255
		}
	}
	return c.renderer.BlitImage(r.x, r.y, r.w, r.h, rgba, 0)
}
