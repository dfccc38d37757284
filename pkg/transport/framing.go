package transport

import (
	"bytes"
	"strconv"
	"sync"
	"time"

	"github.com/omnitak/cot-go/pkg/log"
)

// Framing constants.
const (
	// DefaultWarnThreshold is the buffered-byte count above which the
	// framer flags buffer pressure (64 KiB).
	DefaultWarnThreshold = 64 * 1024

	// DefaultMaxBufferSize is the hard buffer ceiling (1 MiB). When
	// the buffer exceeds it with no extractable message the entire
	// buffer is discarded: a malformed or hostile peer must not be
	// able to exhaust memory.
	DefaultMaxBufferSize = 1024 * 1024

	// MaxTraceFrameSize is the maximum message size included in trace
	// events. Larger messages are truncated in the trace.
	MaxTraceFrameSize = 4096
)

// FramingMode selects how messages are delimited in the byte stream.
type FramingMode int

const (
	// FramingAuto extracts messages by scanning for the balanced
	// close of the top-level <event> element. This handles both
	// newline-terminated and back-to-back message streams and is the
	// right choice for almost every server.
	FramingAuto FramingMode = iota

	// FramingNewline treats each newline-terminated line as one
	// message, for servers that guarantee line-delimited output.
	FramingNewline
)

// String returns the framing mode name.
func (m FramingMode) String() string {
	switch m {
	case FramingAuto:
		return "AUTO"
	case FramingNewline:
		return "NEWLINE"
	default:
		return "UNKNOWN"
	}
}

// FramerStats are counters for one framer's lifetime.
type FramerStats struct {
	// Messages is the number of complete messages extracted.
	Messages uint64

	// Overflows is the number of times the hard buffer limit forced
	// a full discard.
	Overflows uint64

	// BytesDiscarded counts bytes dropped by overflow recovery.
	BytesDiscarded uint64

	// Buffered is the current number of accumulated bytes.
	Buffered int
}

// Framer reassembles complete CoT messages from an arbitrarily
// fragmented byte stream. All buffer access happens under one mutex;
// callers never see buffer internals.
type Framer struct {
	mode          FramingMode
	warnThreshold int
	maxBufferSize int

	mu             sync.Mutex
	buf            []byte
	warned         bool
	messages       uint64
	overflows      uint64
	bytesDiscarded uint64

	// Tracing support (optional)
	logger log.Logger
	connID string
}

// NewFramer creates a framer with default thresholds and automatic
// framing.
func NewFramer() *Framer {
	return NewFramerWithLimits(DefaultWarnThreshold, DefaultMaxBufferSize)
}

// NewFramerWithLimits creates a framer with custom buffer thresholds.
func NewFramerWithLimits(warnThreshold, maxBufferSize int) *Framer {
	if warnThreshold <= 0 {
		warnThreshold = DefaultWarnThreshold
	}
	if maxBufferSize <= 0 {
		maxBufferSize = DefaultMaxBufferSize
	}
	return &Framer{
		mode:          FramingAuto,
		warnThreshold: warnThreshold,
		maxBufferSize: maxBufferSize,
	}
}

// SetMode selects the framing convention. Call before feeding data.
func (f *Framer) SetMode(mode FramingMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
}

// SetLogger configures tracing for this framer.
// Pass nil to disable tracing.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logger = logger
	f.connID = connID
}

// Feed appends a chunk to the accumulator and returns every complete
// message now extractable, in arrival order. Chunks may split
// messages at any byte offset, including mid-attribute; partial data
// is held until the remainder arrives. The chunk is copied, so the
// caller may reuse its read buffer immediately.
func (f *Framer) Feed(chunk []byte) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = append(f.buf, chunk...)

	var msgs [][]byte
	for {
		msg := f.extractLocked()
		if msg == nil {
			break
		}
		f.messages++
		msgs = append(msgs, msg)
		f.traceFrameLocked(msg)
	}

	f.enforceLimitsLocked()

	return msgs
}

// Reset clears all buffered data. Used on disconnect.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = nil
	f.warned = false
}

// Stats returns a snapshot of the framer counters.
func (f *Framer) Stats() FramerStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FramerStats{
		Messages:       f.messages,
		Overflows:      f.overflows,
		BytesDiscarded: f.bytesDiscarded,
		Buffered:       len(f.buf),
	}
}

// extractLocked removes and returns the next complete message from
// the buffer head, or nil when none is complete yet.
func (f *Framer) extractLocked() []byte {
	if f.mode == FramingNewline {
		return f.extractLineLocked()
	}
	return f.extractElementLocked()
}

// extractLineLocked pops the next non-empty newline-terminated line.
func (f *Framer) extractLineLocked() []byte {
	for {
		idx := bytes.IndexByte(f.buf, '\n')
		if idx < 0 {
			return nil
		}
		line := bytes.TrimSpace(f.buf[:idx])
		f.buf = f.buf[idx+1:]
		if len(line) == 0 {
			continue
		}
		return bytes.Clone(line)
	}
}

// extractElementLocked pops the next balanced <event> element.
// Bytes before the element start (newlines, XML declarations from
// chatty servers, line noise) are dropped along with the extraction.
func (f *Framer) extractElementLocked() []byte {
	start := indexEventOpen(f.buf)
	if start < 0 {
		return nil
	}
	end := scanEventEnd(f.buf, start)
	if end < 0 {
		return nil
	}
	msg := bytes.Clone(f.buf[start:end])
	f.buf = f.buf[end:]
	return msg
}

// enforceLimitsLocked applies the overflow policy after extraction.
func (f *Framer) enforceLimitsLocked() {
	if len(f.buf) > f.maxBufferSize {
		discarded := len(f.buf)
		f.buf = nil
		f.overflows++
		f.bytesDiscarded += uint64(discarded)
		f.warned = false
		f.traceErrorLocked("overflow", discarded)
		return
	}

	if len(f.buf) > f.warnThreshold {
		if !f.warned {
			f.warned = true
			f.traceErrorLocked("buffer-pressure", len(f.buf))
		}
	} else {
		f.warned = false
	}
}

// traceFrameLocked records one extracted message in the trace.
func (f *Framer) traceFrameLocked(msg []byte) {
	if f.logger == nil {
		return
	}

	data := msg
	truncated := false
	if len(data) > MaxTraceFrameSize {
		data = data[:MaxTraceFrameSize]
		truncated = true
	}

	f.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: f.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(msg),
			Data:      data,
			Truncated: truncated,
		},
	})
}

// traceErrorLocked records a buffer-policy event in the trace.
func (f *Framer) traceErrorLocked(code string, size int) {
	if f.logger == nil {
		return
	}

	f.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: f.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Code:    code,
			Message: "receive buffer at " + strconv.Itoa(size) + " bytes",
		},
	})
}

const eventOpenTag = "<event"

// indexEventOpen finds the first "<event" start tag, rejecting longer
// element names such as <eventlog>.
func indexEventOpen(buf []byte) int {
	off := 0
	for {
		idx := bytes.Index(buf[off:], []byte(eventOpenTag))
		if idx < 0 {
			return -1
		}
		abs := off + idx
		next := abs + len(eventOpenTag)
		if next >= len(buf) {
			// Tag name boundary not visible yet; treat as a
			// candidate so the partial tag is retained.
			return abs
		}
		switch buf[next] {
		case ' ', '\t', '\r', '\n', '>', '/':
			return abs
		}
		off = abs + 1
	}
}

// scanEventEnd scans from the element start for the end of the
// top-level event element. Returns the index one past the element, or
// -1 when the element is still incomplete. The scan respects quoted
// attribute values, CDATA sections and comments so that '<' and '>'
// inside them never confuse framing.
func scanEventEnd(buf []byte, start int) int {
	depth := 0
	i := start
	for i < len(buf) {
		if buf[i] != '<' {
			i++
			continue
		}

		if hasPrefixAt(buf, i, "<![CDATA[") {
			end := bytes.Index(buf[i:], []byte("]]>"))
			if end < 0 {
				return -1
			}
			i += end + 3
			continue
		}
		if hasPrefixAt(buf, i, "<!--") {
			end := bytes.Index(buf[i:], []byte("-->"))
			if end < 0 {
				return -1
			}
			i += end + 3
			continue
		}

		closing := i+1 < len(buf) && buf[i+1] == '/'
		decl := i+1 < len(buf) && (buf[i+1] == '?' || buf[i+1] == '!')

		// Find the end of this tag, skipping quoted attribute values.
		j := i + 1
		var quote byte
		for j < len(buf) {
			c := buf[j]
			if quote != 0 {
				if c == quote {
					quote = 0
				}
			} else if c == '"' || c == '\'' {
				quote = c
			} else if c == '>' {
				break
			}
			j++
		}
		if j >= len(buf) {
			// Tag itself is split across chunks.
			return -1
		}

		switch {
		case decl:
			// Declaration or processing instruction; no depth change.
		case closing:
			depth--
			if depth <= 0 {
				return j + 1
			}
		case buf[j-1] == '/':
			// Self-closing.
			if depth == 0 {
				return j + 1
			}
		default:
			depth++
		}
		i = j + 1
	}
	return -1
}

// hasPrefixAt reports whether buf has the literal prefix at offset i.
func hasPrefixAt(buf []byte, i int, prefix string) bool {
	return i+len(prefix) <= len(buf) && string(buf[i:i+len(prefix)]) == prefix
}
