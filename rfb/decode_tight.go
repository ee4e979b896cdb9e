package rfb

import "fmt"

const (
	tightFilterCopy     = 0
	tightFilterPalette  = 1
	tightFilterGradient = 2
)

// decodeTight implements the Tight encoding's compression-control byte
// dispatch (grounded on bigangryrobot's TightEncoding.Read: readTightFilter
// branching into copy/palette/gradient, plus the fill/jpeg fast paths it
// handles ahead of the filter switch). PNG payloads are only legal under the
// TightPNG pseudo-encoding (decode_tightpng.go), never plain Tight.
func (c *Client) decodeTight(r rectangle) error {
	return c.decodeTightControl(r, true, false)
}

// decodeTightControl is shared by Tight and TightPNG: both use the same
// compression-control byte layout, differing only in which of basic
// compression (Tight only) and Png (TightPNG only) is legal.
func (c *Client) decodeTightControl(r rectangle, allowBasic, allowPNG bool) error {
	ctrl, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	for s := 0; s < 4; s++ {
		if ctrl&(1<<uint(s)) != 0 {
			c.tightZlib[s] = nil // reset: next use lazily reinitializes the stream
		}
	}

	switch ctrl >> 4 {
	case 8: // fill
		color, err := c.readTightColor()
		if err != nil {
			return err
		}
		return c.renderer.FillRect(r.x, r.y, r.w, r.h, color)

	case 9: // jpeg
		return c.decodeTightImage(r, "image/jpeg")

	case 10: // png, only legal under TightPNG
		if !allowPNG {
			return fmt.Errorf("%w: PNG in non-TightPNG", ErrUnsupportedFeature)
		}
		return c.decodeTightImage(r, "image/png")

	default: // basic compression, only legal under plain Tight
		if !allowBasic {
			return protoErrf("tight: basic compression control byte %#x illegal under TightPNG", ctrl)
		}
		// Stream ID occupies bits 4-5 and the filter-present flag bit 6
		// (i.e. bits 0-1 and bit 2 of the shifted nibble), matching the
		// streamID extraction below rather than the whole byte.
		streamID := int((ctrl >> 4) & 0x3)
		filter := tightFilterCopy
		if (ctrl>>4)&0x04 != 0 {
			f, err := c.bs.Shift8()
			if err != nil {
				return err
			}
			filter = int(f)
		}
		return c.decodeTightBasic(r, streamID, filter)
	}
}

func (c *Client) readTightColor() ([]byte, error) {
	bpp := c.bytesPerPixel()
	raw, err := c.bs.ShiftBytes(bpp, true)
	if err != nil {
		return nil, err
	}
	return c.decodePixel(raw), nil
}

// decodeTightImage reads a variable-length-prefixed JPEG or PNG blob and
// hands it to the renderer, which owns real image decoding. mime is fixed by
// the caller's control code (0x09 jpeg, 0x0A png), not sniffed.
func (c *Client) decodeTightImage(r rectangle, mime string) error {
	length, err := c.readTightLength()
	if err != nil {
		return err
	}
	data, err := c.bs.ShiftBytes(length, true)
	if err != nil {
		return err
	}
	return c.renderer.ImageRect(r.x, r.y, r.w, r.h, mime, data)
}

// readTightLength decodes Tight's variable-length integer: up to 3 bytes,
// each contributing 7 bits, continuation signaled by the top bit.
func (c *Client) readTightLength() (int, error) {
	length := 0
	for shift := 0; shift < 21; shift += 7 {
		b, err := c.bs.Shift8()
		if err != nil {
			return 0, err
		}
		length |= int(b&0x7F) << shift
		if b&0x80 == 0 {
			break
		}
	}
	return length, nil
}

func (c *Client) decodeTightBasic(r rectangle, streamID, filter int) error {
	bpp := c.bytesPerPixel()

	var raw []byte
	var palette [][]byte
	var err error

	switch filter {
	case tightFilterPalette:
		n, err := c.bs.Shift8()
		if err != nil {
			return err
		}
		numColors := int(n) + 1
		palette = make([][]byte, numColors)
		for i := range palette {
			palette[i], err = c.readTightColor()
			if err != nil {
				return err
			}
		}
		bits := 8
		if numColors <= 2 {
			bits = 1
		}
		rowBytes := (r.w*bits + 7) / 8
		rawLen := rowBytes * r.h
		raw, err = c.readTightPayload(streamID, rawLen)
		if err != nil {
			return err
		}
		rgba := make([]byte, r.w*r.h*4)
		for y := 0; y < r.h; y++ {
			row := raw[y*rowBytes : (y+1)*rowBytes]
			for x := 0; x < r.w; x++ {
				idx := readPackedIndex8(row, x, bits)
				if idx >= len(palette) {
					return protoErrf("tight: palette index out of range")
				}
				writeRGBA(rgba, r.w, x, y, palette[idx])
			}
		}
		return c.renderer.BlitImage(r.x, r.y, r.w, r.h, rgba, 0)

	case tightFilterGradient:
		return fmt.Errorf("%w: tight gradient filter not implemented", ErrUnsupportedFeature)

	default: // copy: bpp-sized pixels, row-major, possibly using only 3 of 4 bytes on the wire
		wireBpp := bpp
		if bpp == 4 {
			wireBpp = 3 // servers omit the padding byte for 32bpp Tight "copy" pixels
		}
		rawLen := r.w * r.h * wireBpp
		raw, err = c.readTightPayload(streamID, rawLen)
		if err != nil {
			return err
		}
		rgba := make([]byte, r.w*r.h*4)
		for i := 0; i < r.w*r.h; i++ {
			pixel := raw[i*wireBpp : (i+1)*wireBpp]
			padded := pixel
			if wireBpp == 3 {
				padded = append(append([]byte{}, pixel...), 0)
			}
			rgb := c.decodePixel(padded)
			writeRGBA(rgba, r.w, i%r.w, i/r.w, rgb)
		}
		return c.renderer.BlitImage(r.x, r.y, r.w, r.h, rgba, 0)
	}
}

// readTightPayload returns exactly n bytes, either read directly off the
// wire (Tight skips zlib for very small payloads) or inflated from the
// persistent per-stream zlib decompressor.
func (c *Client) readTightPayload(streamID, n int) ([]byte, error) {
	const tightMinCompressLen = 12
	if n < tightMinCompressLen {
		return c.bs.ShiftBytes(n, true)
	}
	length, err := c.readTightLength()
	if err != nil {
		return nil, err
	}
	compressed, err := c.bs.ShiftBytes(length, true)
	if err != nil {
		return nil, err
	}
	if c.tightZlib[streamID] == nil {
		c.tightZlib[streamID] = newResumableInflate()
	}
	return c.tightZlib[streamID].Decompress(compressed, n)
}

func readPackedIndex8(row []byte, x, bits int) int {
	if bits == 1 {
		byteIdx, bitIdx := x/8, 7-x%8
		return int(row[byteIdx]>>uint(bitIdx)) & 0x1
	}
	return int(row[x])
}

func writeRGBA(rgba []byte, stride, x, y int, rgb []byte) {
	off := (y*stride + x) * 4
	rgba[off], rgba[off+1], rgba[off+2], rgba[off+3] = rgb[0], rgb[1], rgb[2], 255
}
