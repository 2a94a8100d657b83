package process

import (
	"encoding/json"
	"errors"
)

// DefaultScanWindow is the framer's boundary-scan lookahead in bytes.
const DefaultScanWindow = 200_000

// oversizeFactor times the scan window is the hard ceiling on buffered
// bytes before the framer gives up on ever finding a boundary.
const oversizeFactor = 8

// ErrOversizedFrame is reported when the accumulation buffer grows far past
// the scan window without yielding a JSON value. The buffer is discarded so
// the stream can resynchronize on the next frame.
var ErrOversizedFrame = errors.New("frame exceeds scan window, discarding buffered data")

// Framer accumulates raw subprocess output and cuts it into complete JSON
// values. A value is newline-terminated by convention only: pretty-printed
// payloads embed newlines and a final value may arrive with no terminator
// at all, so the framer scans for candidate boundaries ('}', ']', newline)
// and test-parses everything seen so far at each one.
type Framer struct {
	buf    []byte
	window int

	// scanned is the buffer offset already ruled out as a boundary.
	// Candidates before it produced invalid JSON and a longer buffer
	// cannot make those prefixes valid, so rescans resume here.
	scanned int
}

// NewFramer creates a framer with the given scan window. A window of 0 or
// less uses DefaultScanWindow.
func NewFramer(window int) *Framer {
	if window <= 0 {
		window = DefaultScanWindow
	}
	return &Framer{window: window}
}

// Append adds received bytes to the accumulation buffer.
func (f *Framer) Append(p []byte) {
	f.buf = append(f.buf, p...)
}

// Len returns the number of buffered, unconsumed bytes.
func (f *Framer) Len() int {
	return len(f.buf)
}

// Next returns the next complete JSON value, or (nil, nil) when the buffer
// does not yet hold one. ErrOversizedFrame is returned once the buffer
// exceeds the hard ceiling; the buffer is reset and parsing resumes with
// subsequently appended data.
func (f *Framer) Next() (json.RawMessage, error) {
	f.skipLeadingWhitespace()
	if len(f.buf) == 0 {
		return nil, nil
	}

	limit := len(f.buf)
	if limit > f.window {
		limit = f.window
	}

	for i := f.scanned; i < limit; i++ {
		var candidate []byte
		var consumed int
		switch f.buf[i] {
		case '}', ']':
			candidate = f.buf[:i+1]
			consumed = i + 1
		case '\n':
			candidate = f.buf[:i]
			consumed = i + 1
		default:
			continue
		}

		if json.Valid(candidate) {
			value := make(json.RawMessage, len(candidate))
			copy(value, candidate)
			f.buf = f.buf[consumed:]
			f.scanned = 0
			return value, nil
		}
	}
	f.scanned = limit

	if len(f.buf) > f.window*oversizeFactor {
		f.buf = nil
		f.scanned = 0
		return nil, ErrOversizedFrame
	}

	return nil, nil
}

// Flush returns whatever remains in the buffer as a final best-effort
// value. The boolean is true when the remainder is a complete JSON value;
// otherwise the caller gets the raw bytes for logging. The buffer is
// cleared either way.
func (f *Framer) Flush() (json.RawMessage, bool) {
	f.skipLeadingWhitespace()
	rest := f.buf
	f.buf = nil
	f.scanned = 0
	if len(rest) == 0 {
		return nil, false
	}
	if json.Valid(rest) {
		return json.RawMessage(rest), true
	}
	return json.RawMessage(rest), false
}

func (f *Framer) skipLeadingWhitespace() {
	i := 0
	for i < len(f.buf) {
		switch f.buf[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			f.buf = f.buf[i:]
			if f.scanned > 0 {
				f.scanned -= i
				if f.scanned < 0 {
					f.scanned = 0
				}
			}
			return
		}
	}
	f.buf = f.buf[:0]
	f.scanned = 0
}
