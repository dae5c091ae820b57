package gif

import (
	"image"

	"github.com/arsmith/animgif/internal/neuquant"
)

// frameHasTransparentPixel reports whether any pixel inside rect is
// either masked transparent or an exact match for the frame's explicit
// transparent color. It decides how many palette slots the quantizer
// may use (256, or 255 to leave room for the transparent entry).
func frameHasTransparentPixel(pixels []byte, width int, mask []bool, rect image.Rectangle, transparent *RGB) bool {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			i := y*width + x
			if mask[i] {
				return true
			}
			if transparent != nil {
				o := i * 3
				if pixels[o+2] == transparent.R && pixels[o+1] == transparent.G && pixels[o] == transparent.B {
					return true
				}
			}
		}
	}
	return false
}

// buildFramePalette walks rect in display order, mapping every pixel
// through q (or to a lazily-appended transparent entry), and returns
// the packed RGB color table alongside the per-pixel index stream.
func buildFramePalette(q *neuquant.Quantizer, pixels []byte, width int, mask []bool, rect image.Rectangle, transparent *RGB) (colorTable []byte, transparentIndex int, hasTransparent bool, indexed []byte, err error) {
	quantToPalette := make(map[int]int)
	var paletteBytes []byte
	transparentWritten := false
	transparentPaletteIdx := 0

	w, h := rect.Dx(), rect.Dy()
	indexed = make([]byte, w*h)

	k := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			i := y*width + x
			o := i * 3
			b, g, r := pixels[o], pixels[o+1], pixels[o+2]

			isTransparent := mask[i] ||
				(transparent != nil && r == transparent.R && g == transparent.G && b == transparent.B)

			if isTransparent {
				if !transparentWritten {
					transparentPaletteIdx = len(paletteBytes) / 3
					tr, tg, tb := r, g, b
					if transparent != nil {
						tr, tg, tb = transparent.R, transparent.G, transparent.B
					}
					paletteBytes = append(paletteBytes, tr, tg, tb)
					if len(paletteBytes)/3 > 256 {
						return nil, 0, false, nil, ErrPaletteOverflow
					}
					transparentWritten = true
				}
				indexed[k] = byte(transparentPaletteIdx)
				hasTransparent = true
			} else {
				qi := q.Map(int(b), int(g), int(r))
				pi, ok := quantToPalette[qi]
				if !ok {
					nb, ng, nr := q.ColorAt(qi)
					pi = len(paletteBytes) / 3
					paletteBytes = append(paletteBytes, nr, ng, nb)
					if len(paletteBytes)/3 > 256 {
						return nil, 0, false, nil, ErrPaletteOverflow
					}
					quantToPalette[qi] = pi
				}
				indexed[k] = byte(pi)
			}
			k++
		}
	}

	if len(paletteBytes) == 0 {
		paletteBytes = []byte{0, 0, 0}
	}
	padded := paddedTableLen(len(paletteBytes) / 3)
	for len(paletteBytes) < padded {
		paletteBytes = append(paletteBytes, 0)
	}

	return paletteBytes, transparentPaletteIdx, hasTransparent, indexed, nil
}
