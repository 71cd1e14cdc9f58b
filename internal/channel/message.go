package channel

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxFrameSize = 1024 * 1024 // 1MB max frame size
	CommandGetState     = "GET_STATE"
)

// Message is one logical message on the channel. Only "command" and
// "timestamp" have a meaning here; every other field is passed through.
type Message map[string]any

// NewMessage builds a message with the command and the time in seconds since
// the epoch, the shape every peer expects.
func NewMessage(command string, at time.Time) Message {
	return Message{
		"command":   command,
		"timestamp": float64(at.UnixNano()) / float64(time.Second),
	}
}

// Command returns the "command" field, or "" when absent or not a string.
func (m Message) Command() string {
	s, _ := m["command"].(string)
	return s
}

// Timestamp returns the "timestamp" field in seconds since the epoch.
func (m Message) Timestamp() (float64, bool) {
	switch ts := m["timestamp"].(type) {
	case float64:
		return ts, true
	case json.Number:
		f, err := ts.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Encode serializes m as compact JSON followed by a single newline.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return append(data, '\n'), nil
}

// Decode parses one frame. Trailing "\r\n" or "\n", NUL padding and
// surrounding whitespace are ignored. The frame must hold a JSON object.
//
// Numbers decode to float64, except integers too large for a float64 to hold
// exactly; those stay json.Number so they re-encode unchanged.
func Decode(raw []byte) (Message, error) {
	trimmed := bytes.Trim(raw, "\x00 \t\r\n")
	// Skip UTF-8 BOM if present
	trimmed = bytes.TrimPrefix(trimmed, []byte("\xEF\xBB\xBF"))
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrFraming)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var m Message
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrFraming)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: frame is not an object", ErrFraming)
	}
	for k, v := range m {
		m[k] = normalizeNumbers(v)
	}
	return m, nil
}

// maxExactInt is the largest magnitude up to which every integer is exact
// as a float64.
const maxExactInt = 1 << 53

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if isWideInteger(t) {
			return t
		}
		f, err := t.Float64()
		if err != nil {
			return t
		}
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	default:
		return v
	}
}

func isWideInteger(n json.Number) bool {
	s := string(n)
	if strings.ContainsAny(s, ".eE") {
		return false
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return true // beyond int64
	}
	return i > maxExactInt || i < -maxExactInt
}

// FrameReader splits a byte stream into newline-terminated frames. Bytes
// after the last newline are kept until the rest of the frame arrives.
type FrameReader struct {
	r   *bufio.Reader
	max int
}

func NewFrameReader(r io.Reader, maxFrameSize int) *FrameReader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameReader{
		r:   bufio.NewReaderSize(r, 4096),
		max: maxFrameSize,
	}
}

// ReadFrame returns the next frame including its terminator. An oversized
// frame is consumed up to its newline and reported as ErrFrameTooLarge so the
// next call starts on a frame boundary. Errors from the underlying reader are
// returned unchanged; a partial frame pending at that point is dropped.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	var frame []byte
	oversized := false
	for {
		chunk, err := f.r.ReadSlice('\n')
		if !oversized {
			if len(frame)+len(chunk) > f.max {
				oversized = true
				frame = nil
			} else {
				frame = append(frame, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if oversized {
			return nil, ErrFrameTooLarge
		}
		return frame, nil
	}
}
