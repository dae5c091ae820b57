package gif

import (
	"bufio"
	"io"
)

// writer is the minimal interface Encoder needs from its output sink.
// Sinks that already satisfy it (for example a caller-supplied
// *bufio.Writer, or a wrapper that flushes an HTTP response after every
// frame) are used directly; anything else is wrapped in a bufio.Writer.
type writer interface {
	io.Writer
	io.ByteWriter
	Flush() error
}

// wrapWriter returns w unchanged if it already satisfies writer,
// otherwise wraps it in a buffered writer.
func wrapWriter(w io.Writer) writer {
	if w1, ok := w.(writer); ok {
		return w1
	}
	return bufio.NewWriter(w)
}
