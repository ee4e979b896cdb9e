package rfb

import "testing"

func TestPixelFormatForDepth24(t *testing.T) {
	pf := pixelFormatForDepth(24)
	if pf.BPP != 32 {
		t.Errorf("BPP = %d, want 32", pf.BPP)
	}
	if pf.RedMax != 255 || pf.GreenMax != 255 || pf.BlueMax != 255 {
		t.Errorf("channel maxes = %d,%d,%d, want 255 each", pf.RedMax, pf.GreenMax, pf.BlueMax)
	}
	if pf.RedShift != 0 || pf.GreenShift != 8 || pf.BlueShift != 16 {
		t.Errorf("shifts = %d,%d,%d, want 0,8,16", pf.RedShift, pf.GreenShift, pf.BlueShift)
	}
}

func TestPixelFormatMarshalRoundTrip(t *testing.T) {
	pf := pixelFormatForDepth(16)
	raw := pf.marshal()
	if len(raw) != 16 {
		t.Fatalf("marshal len = %d, want 16", len(raw))
	}
	got := parsePixelFormat(raw)
	if got.BPP != pf.BPP || got.Depth != pf.Depth || got.TrueColor != pf.TrueColor {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, pf)
	}
	if got.RedMax != pf.RedMax || got.RedShift != pf.RedShift {
		t.Fatalf("round-trip channel mismatch: got %+v, want %+v", got, pf)
	}
}
