// Package gif implements a streaming GIF89a encoder for sequences of
// 24-bit truecolor frames: per-frame NeuQuant color quantization,
// optional inter-frame diffing (duplicate discard, auto-transparency,
// change-rectangle clipping), and LZW-compressed pixel data.
//
// Decoding, GIF87a, dithering, and non-LZW compression are out of
// scope; see internal/neuquant and internal/lzwgif for the two
// algorithmic subsystems this package orchestrates.
package gif
