package terminal

// outputBuffer accumulates decoded child output under a byte cap. When an
// append would push past the cap, bytes are dropped from the front (oldest
// output) and the truncated flag latches so consumers learn the text is a
// suffix of the true output.
type outputBuffer struct {
	data      []byte
	limit     int
	truncated bool
}

func newOutputBuffer(limit int) outputBuffer {
	return outputBuffer{limit: limit}
}

// Append adds p and enforces the cap.
func (b *outputBuffer) Append(p []byte) {
	b.data = append(b.data, p...)
	if len(b.data) > b.limit {
		excess := len(b.data) - b.limit
		b.data = append(b.data[:0], b.data[excess:]...)
		b.truncated = true
	}
}

// String returns the current buffer contents.
func (b *outputBuffer) String() string {
	return string(b.data)
}

// Truncated reports whether any append ever exceeded the cap.
func (b *outputBuffer) Truncated() bool {
	return b.truncated
}

// Len returns the buffered byte count.
func (b *outputBuffer) Len() int {
	return len(b.data)
}
