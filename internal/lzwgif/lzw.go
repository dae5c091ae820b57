package lzwgif

import "io"

// maxCodeSize is the widest code GIF LZW ever emits; once the
// dictionary would need a 13th bit it is cleared and restarted instead.
const maxCodeSize = 12

// Encoder is a minimal GIF-flavor LZW encoder: variable-width codes
// over an 8-bit symbol alphabet, with clear/end codes and a dictionary
// that resets itself once codes would need to widen past 12 bits.
type Encoder struct {
	minCodeSize int
}

// NewEncoder returns an Encoder whose initial code size is minCodeSize
// bits (the "LZW minimum code size" written ahead of the compressed
// stream). Values below 2 are raised to 2, matching the GIF minimum.
func NewEncoder(minCodeSize int) *Encoder {
	if minCodeSize < 2 {
		minCodeSize = 2
	}
	return &Encoder{minCodeSize: minCodeSize}
}

// Encode writes the minimum-code-size byte, the LZW-compressed sub-block
// stream for pix, and the terminating zero-length sub-block, all to w.
func (e *Encoder) Encode(w io.Writer, pix []byte) error {
	if _, err := w.Write([]byte{byte(e.minCodeSize)}); err != nil {
		return err
	}

	bw := NewBitWriter(w)
	clearCode := 1 << e.minCodeSize
	endCode := clearCode + 1

	codeSize := e.minCodeSize + 1
	nextCode := endCode + 1
	dict := make(map[uint32]uint16)

	bw.WriteBits(uint32(clearCode), uint(codeSize))

	reset := func() {
		dict = make(map[uint32]uint16)
		nextCode = endCode + 1
		codeSize = e.minCodeSize + 1
	}

	if len(pix) > 0 {
		prefix := int(pix[0])
		for _, sym := range pix[1:] {
			key := uint32(prefix)<<8 | uint32(sym)
			if code, ok := dict[key]; ok {
				prefix = int(code)
				continue
			}

			bw.WriteBits(uint32(prefix), uint(codeSize))

			dict[key] = uint16(nextCode)
			nextCode++
			if nextCode > (1 << codeSize) {
				if codeSize < maxCodeSize {
					codeSize++
				} else {
					bw.WriteBits(uint32(clearCode), uint(codeSize))
					reset()
				}
			}

			prefix = int(sym)
		}
		bw.WriteBits(uint32(prefix), uint(codeSize))
	}

	bw.WriteBits(uint32(endCode), uint(codeSize))
	return bw.Close()
}
