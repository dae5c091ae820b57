package gif

import "image"

// frameState holds everything FramePipeline derives about one frame
// before it reaches quantization: the subset of pixels that should
// influence the palette, which pixels were forced transparent, and the
// rectangle that actually needs to be (re-)drawn.
type frameState struct {
	opaquePixels    []byte // BGR, contributing pixels only when AutoTransparency is on
	transparentMask []bool // len = width*height, true where the pixel should be forced transparent
	changeRect      image.Rectangle
	isDuplicate     bool
}

// FramePipeline tracks the previous frame's raw pixels so each new
// frame can be diffed against it. One FramePipeline is owned by one
// Encoder for the lifetime of the canvas.
type FramePipeline struct {
	width, height int

	autoTransparency  bool
	clipFrame         bool
	discardDuplicates bool

	prevPixels []byte // nil until the first frame has been analyzed
}

// NewFramePipeline returns a FramePipeline for a canvas of the given
// size.
func NewFramePipeline(width, height int, opts Options) *FramePipeline {
	return &FramePipeline{
		width:             width,
		height:            height,
		autoTransparency:  opts.AutoTransparency,
		clipFrame:         opts.ClipFrame,
		discardDuplicates: opts.DiscardDuplicates,
	}
}

// Analyze computes the derived fields for pixels (BGR, len
// 3*width*height) given the previously analyzed frame, if any.
func (p *FramePipeline) Analyze(pixels []byte) *frameState {
	if p.prevPixels == nil {
		st := &frameState{
			opaquePixels:    pixels,
			transparentMask: make([]bool, p.width*p.height),
			changeRect:      image.Rect(0, 0, p.width, p.height),
		}
		p.prevPixels = append([]byte(nil), pixels...)
		return st
	}

	n := p.width * p.height
	mask := make([]bool, n)
	var opaque []byte
	if p.autoTransparency {
		opaque = make([]byte, 0, len(pixels))
	} else {
		opaque = pixels
	}

	anyChange := false
	minX, minY := p.width, p.height
	maxX, maxY := -1, -1

	for i := 0; i < n; i++ {
		o := i * 3
		contributes := pixels[o] != p.prevPixels[o] ||
			pixels[o+1] != p.prevPixels[o+1] ||
			pixels[o+2] != p.prevPixels[o+2]

		if contributes {
			anyChange = true
			x, y := i%p.width, i/p.width
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			if p.autoTransparency {
				opaque = append(opaque, pixels[o], pixels[o+1], pixels[o+2])
			}
		} else if p.autoTransparency {
			mask[i] = true
		}
	}

	var rect image.Rectangle
	if p.clipFrame {
		if maxX >= 0 {
			rect = image.Rect(minX, minY, maxX+1, maxY+1)
		}
		// else: zero value, an empty rectangle, per spec.
	} else {
		rect = image.Rect(0, 0, p.width, p.height)
	}

	st := &frameState{
		opaquePixels:    opaque,
		transparentMask: mask,
		changeRect:      rect,
		isDuplicate:     p.discardDuplicates && !anyChange,
	}
	if st.isDuplicate {
		st.opaquePixels = nil
	}

	copy(p.prevPixels, pixels)
	return st
}
