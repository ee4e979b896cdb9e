package rfb

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// resumableInflate wraps a zlib reader that must persist across many calls:
// Tight (one stream per stream-ID 0-3) and ZRLE (one global stream) both
// require the decompressor state to carry over between rectangles, since the
// server only resets the stream when it chooses to (spec.md §4.7, §4.8).
// compress/zlib's Reader cannot be fed new input after EOF-of-chunk, so this
// wraps it with a pipe-backed feeder: Decompress writes the chunk into the
// pipe from a goroutine and reads exactly n decompressed bytes out the other
// end.
type resumableInflate struct {
	zr     io.ReadCloser
	pr     *io.PipeReader
	pw     *io.PipeWriter
	closed bool
}

func newResumableInflate() *resumableInflate {
	return &resumableInflate{}
}

// Decompress feeds compressed into the stream and returns exactly the next n
// decompressed bytes. It lazily creates the zlib.Reader on first use, since
// zlib.NewReader needs to read the 2-byte header from the first chunk.
func (r *resumableInflate) Decompress(compressed []byte, n int) ([]byte, error) {
	if r.zr == nil {
		pr, pw := io.Pipe()
		r.pr, r.pw = pr, pw
		go func() {
			_, _ = pw.Write(compressed)
		}()
		zr, err := zlib.NewReader(r.pr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecoderError, err)
		}
		r.zr = zr
	} else {
		go func(b []byte) {
			_, _ = r.pw.Write(b)
		}(compressed)
	}

	out := make([]byte, n)
	if _, err := io.ReadFull(r.zr, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoderError, err)
	}
	return out, nil
}

func (r *resumableInflate) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.pw != nil {
		_ = r.pw.Close()
	}
	if r.zr != nil {
		return r.zr.Close()
	}
	return nil
}

// inflateAll is a convenience one-shot decompress used where no persistent
// stream state is needed (e.g. a self-contained compressed blob).
func inflateAll(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
