package gif

import (
	"errors"
	"time"
)

// Disposal specifies what a decoder should do with a frame's pixels
// once its delay has elapsed and the next frame is about to be shown.
type Disposal byte

const (
	DisposalUnspecified       Disposal = 0
	DisposalDoNotDispose      Disposal = 1
	DisposalRestoreBackground Disposal = 2
	DisposalRestorePrevious   Disposal = 3
)

// RGB is an opaque 24-bit color, used for Frame.Transparent. Unlike
// color.RGBA it carries no alpha channel, since a GIF transparent color
// is a palette entry, not a blended pixel.
type RGB struct {
	R, G, B byte
}

// Frame is one input to Encoder.AddFrame: a 24-bit truecolor image plus
// the per-frame metadata that ends up in its Graphic Control Extension.
type Frame struct {
	// Pixels is BGR, length 3*Width*Height. Owned by the caller until
	// AddFrame returns.
	Pixels []byte
	Width  int
	Height int

	// Delay between this frame and the next. Normalized to 1/100s
	// (GIF's native unit) when written; sub-centisecond precision is
	// lost, matching how the format itself is limited.
	Delay time.Duration

	// Quality is the NeuQuant sampling factor, 1 (best, slowest) to 30.
	// Values above 30 are clamped to 30; zero or a negative value selects
	// the default of 10.
	Quality int

	// Transparent, if non-nil, is an explicit transparent color for
	// this frame. Mutually exclusive with Options.AutoTransparency.
	Transparent *RGB

	Disposal Disposal
}

// DelayFromFrameRate converts a frame rate in frames per second to the
// Delay duration that displays each frame for 1/fps seconds.
func DelayFromFrameRate(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// Options configure an Encoder. The zero value is valid and disables
// every optimization.
type Options struct {
	// AutoTransparency replaces pixels unchanged from the previous
	// frame with a transparent index instead of re-encoding them.
	// Mutually exclusive with a Frame's explicit Transparent color.
	AutoTransparency bool

	// ClipFrame crops each frame's image block to the smallest
	// rectangle enclosing pixels that changed from the previous frame.
	ClipFrame bool

	// DiscardDuplicates skips writing any image block for a frame that
	// contributes no pixel change, instead folding its delay into the
	// previous written frame's Graphic Control Extension. Requires a
	// seekable output sink.
	DiscardDuplicates bool

	// Repeat is the Netscape loop count: -1 means no loop extension is
	// written (play once), 0 means loop forever, and any other value
	// is the number of additional playthroughs.
	Repeat int
}

// Option mutates an Options value; see WithAutoTransparency etc.
type Option func(*Options)

func WithAutoTransparency(on bool) Option { return func(o *Options) { o.AutoTransparency = on } }
func WithClipFrame(on bool) Option        { return func(o *Options) { o.ClipFrame = on } }
func WithDiscardDuplicates(on bool) Option {
	return func(o *Options) { o.DiscardDuplicates = on }
}
func WithRepeat(n int) Option { return func(o *Options) { o.Repeat = n } }

var (
	// ErrInvalidFrame covers a nil frame, a size mismatch with the
	// established canvas, AutoTransparency combined with an explicit
	// per-frame transparent color, a frame added after Close, or the
	// same *Frame value added twice.
	ErrInvalidFrame = errors.New("gif: invalid frame")

	// ErrPaletteOverflow means a frame produced more than 256 distinct
	// palette entries; this should not happen given a correct
	// quantizer and is reported defensively.
	ErrPaletteOverflow = errors.New("gif: palette overflow")

	// ErrSeekUnsupported means Options.DiscardDuplicates was enabled
	// but the output sink does not support seeking.
	ErrSeekUnsupported = errors.New("gif: sink does not support seeking, required by DiscardDuplicates")
)
