package gif

import (
	"bytes"
	"errors"
	"image"
	stdgif "image/gif"
	"io"
	"testing"
	"time"

	"golang.org/x/image/colornames"
)

// memWriter is a minimal in-memory io.Writer+io.Seeker, standing in for
// a seekable sink (a real file, typically) so DiscardDuplicates'
// back-patching can be exercised without touching disk.
type memWriter struct {
	buf []byte
	pos int
}

func (m *memWriter) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriter) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = int64(m.pos) + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	}
	m.pos = int(newPos)
	return newPos, nil
}

func bgrPixels(w, h int, c ...[3]byte) []byte {
	pix := make([]byte, 3*w*h)
	for i := 0; i < w*h; i++ {
		px := c[i%len(c)]
		pix[i*3], pix[i*3+1], pix[i*3+2] = px[0], px[1], px[2]
	}
	return pix
}

func rgbTriple(r, g, b byte) [3]byte { return [3]byte{b, g, r} }

func TestEncodeSolidFrame(t *testing.T) {
	var buf bytes.Buffer
	enc := Open(&buf)
	f := &Frame{Width: 2, Height: 2, Pixels: bgrPixels(2, 2, rgbTriple(colornames.Red.R, colornames.Red.G, colornames.Red.B))}
	if err := enc.AddFrame(f); err != nil {
		t.Fatal("AddFrame:", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal("Close:", err)
	}

	g, err := stdgif.DecodeAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal("DecodeAll:", err)
	}
	if len(g.Image) != 1 {
		t.Fatalf("got %d frames, want 1", len(g.Image))
	}
	if got := g.Image[0].Bounds(); got != image.Rect(0, 0, 2, 2) {
		t.Fatalf("bounds = %v, want 0,0,2,2", got)
	}
	r, gg, b, _ := g.Image[0].At(0, 0).RGBA()
	if near8(r>>8, uint32(colornames.Red.R)) > 4 || near8(gg>>8, uint32(colornames.Red.G)) > 4 || near8(b>>8, uint32(colornames.Red.B)) > 4 {
		t.Fatalf("pixel color = (%d,%d,%d), want near red", r>>8, gg>>8, b>>8)
	}
}

func near8(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestEncodeDiscardDuplicatesMergesDelay(t *testing.T) {
	w := &memWriter{}
	enc := Open(w, WithDiscardDuplicates(true))

	pix := bgrPixels(4, 4, rgbTriple(10, 20, 30))
	if err := enc.AddFrame(&Frame{Width: 4, Height: 4, Pixels: pix, Delay: 90 * time.Millisecond}); err != nil {
		t.Fatal("AddFrame 1:", err)
	}
	if err := enc.AddFrame(&Frame{Width: 4, Height: 4, Pixels: append([]byte(nil), pix...), Delay: 120 * time.Millisecond}); err != nil {
		t.Fatal("AddFrame 2:", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal("Close:", err)
	}

	g, err := stdgif.DecodeAll(bytes.NewReader(w.buf))
	if err != nil {
		t.Fatal("DecodeAll:", err)
	}
	if len(g.Image) != 1 {
		t.Fatalf("got %d frames, want 1 (second should be folded)", len(g.Image))
	}
	if g.Delay[0] != 21 {
		t.Fatalf("delay = %dcs, want 21cs (9+12)", g.Delay[0])
	}
}

func TestEncodeClipFrameCropsToChange(t *testing.T) {
	var buf bytes.Buffer
	enc := Open(&buf, WithClipFrame(true))

	base := bgrPixels(4, 4, rgbTriple(0, 0, 0))
	if err := enc.AddFrame(&Frame{Width: 4, Height: 4, Pixels: base}); err != nil {
		t.Fatal("AddFrame 1:", err)
	}

	changed := append([]byte(nil), base...)
	o := (1*4 + 2) * 3
	changed[o], changed[o+1], changed[o+2] = 255, 255, 255
	if err := enc.AddFrame(&Frame{Width: 4, Height: 4, Pixels: changed}); err != nil {
		t.Fatal("AddFrame 2:", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal("Close:", err)
	}

	g, err := stdgif.DecodeAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal("DecodeAll:", err)
	}
	if len(g.Image) != 2 {
		t.Fatalf("got %d frames, want 2", len(g.Image))
	}
	want := image.Rect(2, 1, 3, 2)
	if got := g.Image[1].Bounds(); got != want {
		t.Fatalf("second frame bounds = %v, want %v", got, want)
	}
}

func TestEncodeAutoTransparencyMasksUnchanged(t *testing.T) {
	var buf bytes.Buffer
	enc := Open(&buf, WithAutoTransparency(true))

	row := bgrPixels(3, 1, rgbTriple(10, 10, 10), rgbTriple(20, 20, 20), rgbTriple(30, 30, 30))
	if err := enc.AddFrame(&Frame{Width: 3, Height: 1, Pixels: row}); err != nil {
		t.Fatal("AddFrame 1:", err)
	}

	changed := append([]byte(nil), row...)
	changed[3], changed[4], changed[5] = 99, 98, 97 // only middle pixel changes
	if err := enc.AddFrame(&Frame{Width: 3, Height: 1, Pixels: changed}); err != nil {
		t.Fatal("AddFrame 2:", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal("Close:", err)
	}

	g, err := stdgif.DecodeAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal("DecodeAll:", err)
	}
	frame := g.Image[1]
	_, _, _, a := frame.At(0, 0).RGBA()
	if a != 0 {
		t.Fatal("unchanged pixel (0,0) not transparent in second frame")
	}
	_, _, _, a = frame.At(2, 0).RGBA()
	if a != 0 {
		t.Fatal("unchanged pixel (2,0) not transparent in second frame")
	}
	_, _, _, a = frame.At(1, 0).RGBA()
	if a == 0 {
		t.Fatal("changed pixel (1,0) was masked transparent")
	}

	if g.Disposal[1] != byte(DisposalRestoreBackground) {
		t.Fatalf("Disposal = %d, want %d (DisposalRestoreBackground, inferred from active transparency)", g.Disposal[1], DisposalRestoreBackground)
	}
}

func TestEncodeDisposalDefaultsToUnspecifiedWithoutTransparency(t *testing.T) {
	var buf bytes.Buffer
	enc := Open(&buf)
	if err := enc.AddFrame(&Frame{Width: 1, Height: 1, Pixels: bgrPixels(1, 1, rgbTriple(1, 2, 3))}); err != nil {
		t.Fatal("AddFrame:", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal("Close:", err)
	}

	g, err := stdgif.DecodeAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal("DecodeAll:", err)
	}
	if g.Disposal[0] != byte(DisposalUnspecified) {
		t.Fatalf("Disposal = %d, want %d (DisposalUnspecified, no transparency in play)", g.Disposal[0], DisposalUnspecified)
	}
}

func TestEncodeDisposalInferenceDoesNotOverrideExplicitChoice(t *testing.T) {
	var buf bytes.Buffer
	enc := Open(&buf, WithAutoTransparency(true))

	row := bgrPixels(2, 1, rgbTriple(10, 10, 10), rgbTriple(20, 20, 20))
	if err := enc.AddFrame(&Frame{Width: 2, Height: 1, Pixels: row}); err != nil {
		t.Fatal("AddFrame 1:", err)
	}

	changed := append([]byte(nil), row...)
	changed[3], changed[4], changed[5] = 99, 98, 97
	f2 := &Frame{Width: 2, Height: 1, Pixels: changed, Disposal: DisposalDoNotDispose}
	if err := enc.AddFrame(f2); err != nil {
		t.Fatal("AddFrame 2:", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal("Close:", err)
	}

	g, err := stdgif.DecodeAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal("DecodeAll:", err)
	}
	if g.Disposal[1] != byte(DisposalDoNotDispose) {
		t.Fatalf("Disposal = %d, want %d (explicit DisposalDoNotDispose, not inferred)", g.Disposal[1], DisposalDoNotDispose)
	}
}

func TestEncodeNetscapeLoopExtension(t *testing.T) {
	var buf bytes.Buffer
	enc := Open(&buf, WithRepeat(3))

	for i := 0; i < 5; i++ {
		pix := bgrPixels(2, 2, rgbTriple(byte(i*40), byte(i*30), byte(i*20)))
		if err := enc.AddFrame(&Frame{Width: 2, Height: 2, Pixels: pix}); err != nil {
			t.Fatal("AddFrame:", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatal("Close:", err)
	}

	g, err := stdgif.DecodeAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal("DecodeAll:", err)
	}
	if len(g.Image) != 5 {
		t.Fatalf("got %d frames, want 5", len(g.Image))
	}
	if g.LoopCount != 3 {
		t.Fatalf("LoopCount = %d, want 3", g.LoopCount)
	}
}

func TestEncodeNoNetscapeExtensionByDefault(t *testing.T) {
	var buf bytes.Buffer
	enc := Open(&buf)
	if err := enc.AddFrame(&Frame{Width: 1, Height: 1, Pixels: bgrPixels(1, 1, rgbTriple(1, 2, 3))}); err != nil {
		t.Fatal("AddFrame:", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal("Close:", err)
	}
	g, err := stdgif.DecodeAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal("DecodeAll:", err)
	}
	if g.LoopCount != -1 {
		t.Fatalf("LoopCount = %d, want -1 (no loop extension written)", g.LoopCount)
	}
}

func TestAddFrameRejectsAutoTransparencyWithExplicitColor(t *testing.T) {
	enc := Open(&bytes.Buffer{}, WithAutoTransparency(true))
	tr := RGB{R: 1, G: 2, B: 3}
	err := enc.AddFrame(&Frame{Width: 1, Height: 1, Pixels: bgrPixels(1, 1, rgbTriple(1, 2, 3)), Transparent: &tr})
	if !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("err = %v, want ErrInvalidFrame", err)
	}
}

func TestAddFrameRejectsSizeMismatch(t *testing.T) {
	enc := Open(&bytes.Buffer{})
	if err := enc.AddFrame(&Frame{Width: 2, Height: 2, Pixels: bgrPixels(2, 2, rgbTriple(0, 0, 0))}); err != nil {
		t.Fatal("AddFrame 1:", err)
	}
	err := enc.AddFrame(&Frame{Width: 3, Height: 3, Pixels: bgrPixels(3, 3, rgbTriple(0, 0, 0))})
	if !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("err = %v, want ErrInvalidFrame", err)
	}
}

func TestAddFrameRejectsNilAndAfterClose(t *testing.T) {
	enc := Open(&bytes.Buffer{})
	if err := enc.AddFrame(nil); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("nil frame err = %v, want ErrInvalidFrame", err)
	}
	f := &Frame{Width: 1, Height: 1, Pixels: bgrPixels(1, 1, rgbTriple(0, 0, 0))}
	if err := enc.AddFrame(f); err != nil {
		t.Fatal("AddFrame:", err)
	}
	if err := enc.AddFrame(f); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("duplicate *Frame err = %v, want ErrInvalidFrame", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal("Close:", err)
	}
	f2 := &Frame{Width: 1, Height: 1, Pixels: bgrPixels(1, 1, rgbTriple(0, 0, 0))}
	if err := enc.AddFrame(f2); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("post-Close err = %v, want ErrInvalidFrame", err)
	}
}

func TestAddFrameRequiresSeekableSinkForDiscardDuplicates(t *testing.T) {
	enc := Open(&bytes.Buffer{}, WithDiscardDuplicates(true))
	err := enc.AddFrame(&Frame{Width: 1, Height: 1, Pixels: bgrPixels(1, 1, rgbTriple(0, 0, 0))})
	if !errors.Is(err, ErrSeekUnsupported) {
		t.Fatalf("err = %v, want ErrSeekUnsupported", err)
	}
}
