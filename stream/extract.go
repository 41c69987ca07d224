package stream

import "strings"

// extractor states.
const (
	stateScanning = iota
	stateSawKey
	stateSawColon
	stateInString
	stateDone
)

// FieldExtractor incrementally pulls one string field's value out of a JSON
// document arriving in arbitrary chunks. Used to stream the draft text out
// of a structured model response without waiting for the full document.
//
// The extractor is a byte state machine: it scans for the quoted key, skips
// to the colon, enters the value string, and emits unescaped value bytes
// until the closing quote. A tail buffer of len(key)-1 bytes carries key
// matches across chunk boundaries.
type FieldExtractor struct {
	key   string // quoted key, e.g. `"draft"`
	state int

	tail    string // trailing bytes of the previous chunk while scanning
	escaped bool

	// bufferAll holds emission until the value is complete. Used when the
	// consumer wants the whole value once rather than streamed deltas.
	bufferAll bool
	buf       strings.Builder
	emit      func(delta string)
}

// NewFieldExtractor creates an extractor for the given field name. When
// bufferAll is false, emit receives value deltas as chunks arrive; when
// true, emission is withheld and the full value is available from Result
// after the closing quote. emit may be nil with bufferAll true.
func NewFieldExtractor(field string, bufferAll bool, emit func(delta string)) *FieldExtractor {
	return &FieldExtractor{
		key:       `"` + field + `"`,
		bufferAll: bufferAll,
		emit:      emit,
	}
}

// Feed processes the next chunk of the JSON document.
func (e *FieldExtractor) Feed(chunk string) {
	if e.state == stateDone || chunk == "" {
		return
	}

	i := 0
	if e.state == stateScanning {
		window := e.tail + chunk
		idx := strings.Index(window, e.key)
		if idx < 0 {
			if len(window) >= len(e.key) {
				e.tail = window[len(window)-(len(e.key)-1):]
			} else {
				e.tail = window
			}
			return
		}
		// The key cannot end inside the tail (the tail is shorter than
		// the key), so the position past it lands within this chunk.
		i = idx + len(e.key) - len(e.tail)
		e.state = stateSawKey
		e.tail = ""
	}

	var delta strings.Builder
	for ; i < len(chunk); i++ {
		c := chunk[i]
		switch e.state {
		case stateSawKey:
			if c == ':' {
				e.state = stateSawColon
			}
		case stateSawColon:
			if c == '"' {
				e.state = stateInString
			}
		case stateInString:
			if e.escaped {
				delta.WriteByte(unescape(c))
				e.escaped = false
				continue
			}
			switch c {
			case '\\':
				e.escaped = true
			case '"':
				e.state = stateDone
				e.flush(delta.String())
				return
			default:
				delta.WriteByte(c)
			}
		}
	}
	e.flush(delta.String())
}

// Done reports whether the field's value has been fully consumed.
func (e *FieldExtractor) Done() bool { return e.state == stateDone }

// Result returns the accumulated value. Complete is true once the closing
// quote has been seen.
func (e *FieldExtractor) Result() (value string, complete bool) {
	return e.buf.String(), e.state == stateDone
}

func (e *FieldExtractor) flush(delta string) {
	if delta == "" {
		return
	}
	e.buf.WriteString(delta)
	if !e.bufferAll && e.emit != nil {
		e.emit(delta)
	}
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		// Covers \" \\ \/ and anything else verbatim.
		return c
	}
}
