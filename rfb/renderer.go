package rfb

// Renderer is the small surface decoders call to paint pixels. A concrete
// implementation owns an actual framebuffer/canvas; the core never looks
// inside it. Decoders borrow the Renderer only for the duration of a single
// decodeRect call (spec.md §3 "Ownership").
type Renderer interface {
	// Resize changes the logical framebuffer size.
	Resize(w, h int)

	// FillRect paints an opaque solid-color rectangle. color is RGB (3
	// bytes) or RGBA (4 bytes); a 3-byte color implies alpha=255.
	FillRect(x, y, w, h int, color []byte) error

	// BlitImage writes raw RGBA pixel data starting at offset into the
	// rectangle (x,y,w,h).
	BlitImage(x, y, w, h int, rgba []byte, offset int) error

	// CopyImage copies a (w,h) region already on the framebuffer from
	// (srcX,srcY) to (dstX,dstY).
	CopyImage(srcX, srcY, dstX, dstY, w, h int) error

	// ImageRect hands a compressed image blob (image/jpeg or image/png) to
	// the renderer to decode and paint at (x,y,w,h).
	ImageRect(x, y, w, h int, mimeType string, data []byte) error

	// Flip commits all draws accumulated since the last Flip atomically.
	Flip() error

	// Pending reports whether the renderer has unflushed/backlogged work;
	// the engine uses this for backpressure (spec.md §5).
	Pending() bool

	// Flush waits for the renderer to drain its backlog.
	Flush() error
}
