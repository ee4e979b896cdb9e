package rfb

// decodeTightPNG implements the TightPNG encoding (spec.md §4.2.6): the same
// compression-control byte layout as Tight, but basic (zlib/filter)
// compression is illegal and PNG payloads are legal alongside JPEG and fill.
func (c *Client) decodeTightPNG(r rectangle) error {
	return c.decodeTightControl(r, false, true)
}
