package rfb

import (
	"bytes"
	"fmt"
)

// decodeJPEG implements the JPEG encoding (spec.md §4.2.8): the rectangle's
// payload is a standalone JFIF stream, except servers may omit DHT/DQT
// segments on rects after the first if they're unchanged, relying on the
// client to remember and re-inject the last ones it saw. We re-inject
// immediately after SOF, which Go's image/jpeg decoder accepts since Huffman
// and quantization tables only need to be registered before the scan (SOS)
// that uses them.
func (c *Client) decodeJPEG(r rectangle) error {
	var out bytes.Buffer

	soi, err := c.bs.ShiftBytes(2, true)
	if err != nil {
		return err
	}
	if soi[0] != 0xFF || soi[1] != 0xD8 {
		return protoErrf("jpeg: missing SOI marker")
	}
	out.Write(soi)

	var haveSOF bool
	var curDQT, curDHT []byte

	for {
		marker, err := c.bs.ShiftBytes(2, true)
		if err != nil {
			return err
		}
		if marker[0] != 0xFF {
			return protoErrf("jpeg: expected marker, got %#x", marker[0])
		}
		typ := marker[1]

		if typ == 0xD9 { // EOI
			out.Write(marker)
			break
		}
		if typ == 0x01 || (typ >= 0xD0 && typ <= 0xD7) {
			// standalone markers: TEM, RSTn; no length field follows
			out.Write(marker)
			continue
		}

		lenBytes, err := c.bs.ShiftBytes(2, true)
		if err != nil {
			return err
		}
		length := int(lenBytes[0])<<8 | int(lenBytes[1])
		if length < 2 {
			return protoErrf("jpeg: invalid segment length %d", length)
		}
		payload, err := c.bs.ShiftBytes(length-2, true)
		if err != nil {
			return err
		}
		segment := make([]byte, 0, 2+2+len(payload))
		segment = append(segment, marker...)
		segment = append(segment, lenBytes...)
		segment = append(segment, payload...)

		switch typ {
		case 0xDB: // DQT
			curDQT = segment
			c.jpegQuantCache = segment
			out.Write(segment)

		case 0xC4: // DHT
			curDHT = segment
			c.jpegHuffmanCache = segment
			out.Write(segment)

		case 0xC0, 0xC2: // SOF0 / SOF2
			haveSOF = true
			out.Write(segment)
			if curDQT == nil && c.jpegQuantCache != nil {
				out.Write(c.jpegQuantCache)
			}
			if curDHT == nil && c.jpegHuffmanCache != nil {
				out.Write(c.jpegHuffmanCache)
			}

		case 0xDA: // SOS
			out.Write(segment)
			if err := c.copyJPEGEntropyData(&out); err != nil {
				return err
			}

		default:
			out.Write(segment)
		}
	}

	if !haveSOF {
		return fmt.Errorf("%w: jpeg rectangle missing SOF", ErrDecoderError)
	}
	return c.renderer.ImageRect(r.x, r.y, r.w, r.h, "image/jpeg", out.Bytes())
}

// copyJPEGEntropyData copies entropy-coded scan bytes following SOS until the
// next real marker, leaving that marker unconsumed for the caller's loop.
// Byte-stuffed 0xFF 0x00 and inline restart markers (0xD0-0xD7) are entropy
// data, not segment boundaries. ByteStream has no pushback, so every byte is
// Peek'd before it is Shift'd.
func (c *Client) copyJPEGEntropyData(out *bytes.Buffer) error {
	for {
		b, err := c.bs.Peek8()
		if err != nil {
			return err
		}
		if b != 0xFF {
			if _, err := c.bs.Shift8(); err != nil {
				return err
			}
			out.WriteByte(b)
			continue
		}

		two, err := c.bs.PeekBytes(2, false)
		if err != nil {
			return err
		}
		marker := two[1]
		if marker == 0x00 || (marker >= 0xD0 && marker <= 0xD7) {
			if _, err := c.bs.ShiftBytes(2, false); err != nil {
				return err
			}
			out.Write(two)
			continue
		}
		return nil
	}
}
