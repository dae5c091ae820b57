package gif

import (
	"fmt"
	"image"
	"io"
	"time"

	"github.com/arsmith/animgif/internal/lzwgif"
	"github.com/arsmith/animgif/internal/neuquant"
)

// Encoder writes a sequence of Frame values out as a single animated
// GIF. Create one with Open, call AddFrame for each frame in display
// order, and call Close to write the trailer and flush the sink.
type Encoder struct {
	rawSink io.Writer
	w       writer
	seeker  io.Seeker

	opts     Options
	pipeline *FramePipeline
	width    int
	height   int

	closed bool
	err    error
	pos    int64

	addedFrames map[*Frame]bool

	lastGCEOffset int64
	lastGCEDelay  uint16
}

// Open returns an Encoder that writes to w. w is wrapped in a buffered
// writer unless it already satisfies the minimal interface Encoder
// needs; either way w is also kept unwrapped so Options.DiscardDuplicates
// can seek it directly.
func Open(w io.Writer, opts ...Option) *Encoder {
	o := Options{Repeat: -1}
	for _, opt := range opts {
		opt(&o)
	}
	return &Encoder{
		rawSink:     w,
		w:           wrapWriter(w),
		opts:        o,
		addedFrames: make(map[*Frame]bool),
	}
}

// AddFrame quantizes and writes one frame. The first call establishes
// the canvas size from f.Width/f.Height; later frames must match it.
func (e *Encoder) AddFrame(f *Frame) error {
	if e.err != nil {
		return e.err
	}
	if e.closed {
		return fmt.Errorf("gif: AddFrame called after Close: %w", ErrInvalidFrame)
	}
	if f == nil {
		return fmt.Errorf("gif: nil frame: %w", ErrInvalidFrame)
	}
	if e.addedFrames[f] {
		return fmt.Errorf("gif: frame already added: %w", ErrInvalidFrame)
	}
	if e.opts.AutoTransparency && f.Transparent != nil {
		return fmt.Errorf("gif: Transparent set with AutoTransparency enabled: %w", ErrInvalidFrame)
	}
	if e.pipeline != nil && (f.Width != e.width || f.Height != e.height) {
		return fmt.Errorf("gif: frame size %dx%d does not match canvas %dx%d: %w", f.Width, f.Height, e.width, e.height, ErrInvalidFrame)
	}
	if f.Width <= 0 || f.Height <= 0 || len(f.Pixels) != 3*f.Width*f.Height {
		return fmt.Errorf("gif: pixel buffer length %d does not match %dx%d: %w", len(f.Pixels), f.Width, f.Height, ErrInvalidFrame)
	}
	e.addedFrames[f] = true

	first := e.pipeline == nil
	if first {
		e.width, e.height = f.Width, f.Height
		e.pipeline = NewFramePipeline(e.width, e.height, e.opts)
		if e.opts.DiscardDuplicates {
			sk, ok := e.rawSink.(io.Seeker)
			if !ok {
				e.err = ErrSeekUnsupported
				return e.err
			}
			e.seeker = sk
		}
	}

	st := e.pipeline.Analyze(f.Pixels)
	if !first && st.isDuplicate {
		return e.foldDuplicateDelay(f)
	}

	rect := st.changeRect
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		rect = image.Rect(0, 0, 1, 1)
	}

	hasT := frameHasTransparentPixel(f.Pixels, e.width, st.transparentMask, rect, f.Transparent)
	n := 256
	if hasT {
		n = 255
	}

	q := neuquant.New(n)
	q.Learn(st.opaquePixels, clampQuality(f.Quality))
	q.Unbias()
	q.BuildIndex()

	colorTable, transparentIndex, hasTransparent, indexedPixels, err := buildFramePalette(q, f.Pixels, e.width, st.transparentMask, rect, f.Transparent)
	if err != nil {
		return err
	}

	disposal := f.Disposal
	if disposal == DisposalUnspecified && hasTransparent {
		disposal = DisposalRestoreBackground
	}

	if first {
		e.writeHeader(colorTable)
	}

	e.writeGraphicControl(f.Delay, disposal, hasTransparent, transparentIndex)
	e.writeImageDescriptor(rect, first, colorTable)
	if !first {
		e.write(colorTable)
	}

	lzwEnc := lzwgif.NewEncoder(8)
	if lerr := lzwEnc.Encode(encWriter{e}, indexedPixels); lerr != nil && e.err == nil {
		e.err = lerr
	}

	return e.err
}

// writeHeader writes the signature, logical screen descriptor, global
// color table (the first frame's palette), and the Netscape loop
// extension, if one was requested.
func (e *Encoder) writeHeader(colorTable []byte) {
	e.writeASCII("GIF89a")

	var lsd [7]byte
	writeUint16(lsd[0:2], uint16(e.width))
	writeUint16(lsd[2:4], uint16(e.height))
	lsd[4] = fColorTableFollows | fColorResolution | colorTableSizeField(len(colorTable))
	lsd[5] = 0 // background color index
	lsd[6] = 0 // pixel aspect ratio
	e.write(lsd[:])

	e.write(colorTable)

	if e.opts.Repeat >= 0 {
		e.writeNetscapeLoop()
	}
}

func (e *Encoder) writeNetscapeLoop() {
	e.writeByte(sExtension)
	e.writeByte(eApplication)
	e.writeByte(11)
	e.writeASCII("NETSCAPE2.0")
	e.writeByte(3)
	e.writeByte(1)
	var loop [2]byte
	writeUint16(loop[:], uint16(e.opts.Repeat))
	e.write(loop[:])
	e.writeByte(0)
}

// writeGraphicControl writes a Graphic Control Extension and records
// its offset and delay so a later duplicate frame can fold its delay
// into this one via foldDuplicateDelay.
func (e *Encoder) writeGraphicControl(delay time.Duration, disposal Disposal, hasTransparent bool, transparentIndex int) {
	e.lastGCEOffset = e.pos
	e.lastGCEDelay = centisecondsFromDuration(delay)

	e.writeByte(sExtension)
	e.writeByte(eGraphicControl)
	e.writeByte(4)

	packed := byte(disposal) << 2
	if hasTransparent {
		packed |= gcTransparentColorSet
	}
	e.writeByte(packed)

	var d [2]byte
	writeUint16(d[:], e.lastGCEDelay)
	e.write(d[:])

	if hasTransparent {
		e.writeByte(byte(transparentIndex))
	} else {
		e.writeByte(0)
	}
	e.writeByte(0)
}

func (e *Encoder) writeImageDescriptor(rect image.Rectangle, first bool, colorTable []byte) {
	e.writeByte(sImageDescriptor)
	var id [8]byte
	writeUint16(id[0:2], uint16(rect.Min.X))
	writeUint16(id[2:4], uint16(rect.Min.Y))
	writeUint16(id[4:6], uint16(rect.Dx()))
	writeUint16(id[6:8], uint16(rect.Dy()))
	e.write(id[:])

	if first {
		e.writeByte(0)
	} else {
		e.writeByte(fColorTableFollows | colorTableSizeField(len(colorTable)))
	}
}

// foldDuplicateDelay is reached when a frame contributes no pixel
// change and Options.DiscardDuplicates is set: instead of writing a
// new image block, it rewrites the delay field of the most recently
// written frame's Graphic Control Extension.
func (e *Encoder) foldDuplicateDelay(f *Frame) error {
	add := centisecondsFromDuration(f.Delay)
	newDelay := uint32(e.lastGCEDelay) + uint32(add)
	if newDelay > 0xffff {
		newDelay = 0xffff
	}
	e.lastGCEDelay = uint16(newDelay)

	if err := e.w.Flush(); err != nil {
		e.err = err
		return err
	}
	if _, err := e.seeker.Seek(e.lastGCEOffset+4, io.SeekStart); err != nil {
		e.err = err
		return err
	}
	var d [2]byte
	writeUint16(d[:], e.lastGCEDelay)
	if _, err := e.rawSink.Write(d[:]); err != nil {
		e.err = err
		return err
	}
	if _, err := e.seeker.Seek(e.pos, io.SeekStart); err != nil {
		e.err = err
		return err
	}
	return nil
}

// Close writes the trailer and flushes the sink. It is safe to call
// more than once; later calls return the result of the first.
func (e *Encoder) Close() error {
	if e.closed {
		return e.err
	}
	e.closed = true
	if e.err != nil {
		return e.err
	}
	if e.pipeline == nil {
		return nil
	}
	e.writeByte(sTrailer)
	if ferr := e.w.Flush(); ferr != nil && e.err == nil {
		e.err = ferr
	}
	return e.err
}

// write and writeByte are the only places e.pos advances; every other
// write that extends the stream funnels through them (foldDuplicateDelay's
// in-place overwrite of an earlier delay field goes straight to the raw
// sink and leaves e.pos unchanged), so a back-patch offset recorded via
// e.pos is always accurate regardless of buffering.
func (e *Encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(p)
	e.pos += int64(n)
	if err != nil {
		e.err = err
	}
}

func (e *Encoder) writeByte(b byte) {
	if e.err != nil {
		return
	}
	if err := e.w.WriteByte(b); err != nil {
		e.err = err
		return
	}
	e.pos++
}

// writeASCII writes s as raw ASCII bytes (GIF headers and extension
// identifiers are always ASCII).
func (e *Encoder) writeASCII(s string) {
	e.write([]byte(s))
}

// encWriter adapts Encoder's poisoning write path to io.Writer so the
// LZW encoder can write through it without knowing about e.pos or e.err.
type encWriter struct{ e *Encoder }

func (ew encWriter) Write(p []byte) (int, error) {
	ew.e.write(p)
	if ew.e.err != nil {
		return 0, ew.e.err
	}
	return len(p), nil
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return 10
	case q > 30:
		return 30
	default:
		return q
	}
}

func centisecondsFromDuration(d time.Duration) uint16 {
	c := d / (10 * time.Millisecond)
	if c < 0 {
		c = 0
	}
	if c > 0xffff {
		c = 0xffff
	}
	return uint16(c)
}
