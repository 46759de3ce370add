package framing

import (
	"bytes"
	"net/http"

	apperrors "github.com/kbukum/bytepipe/errors"
)

// Splitter reassembles delimiter-terminated records from arbitrarily chunked
// input. It holds only the bytes received since the last extracted record;
// emitted records are handed to the caller and never referenced again.
//
// A Splitter is not safe for concurrent use. It belongs to one stage.
type Splitter struct {
	delim     []byte
	policy    Policy
	maxRecord int

	buf       []byte // undelimited tail
	scanned   int    // prefix of buf known not to contain the start of a delimiter
	flushed   bool
	discarded int64
	err       error
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithPolicy sets the end-of-stream policy for a trailing partial record.
func WithPolicy(p Policy) Option {
	return func(s *Splitter) { s.policy = p }
}

// WithMaxRecordSize bounds the size of a single record. Zero means unbounded.
func WithMaxRecordSize(n int) Option {
	return func(s *Splitter) { s.maxRecord = n }
}

// New creates a Splitter for the given delimiter. The delimiter is copied.
func New(delim []byte, opts ...Option) (*Splitter, error) {
	if len(delim) == 0 {
		return nil, apperrors.InvalidConfig("delimiter", "delimiter must not be empty")
	}
	s := &Splitter{delim: append([]byte(nil), delim...)}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxRecord < 0 {
		return nil, apperrors.InvalidConfig("max_record_size", "must not be negative")
	}
	if s.policy != PolicyEmit && s.policy != PolicyRequireDelimiter {
		return nil, apperrors.InvalidConfig("trailing_partial_policy", "unknown policy "+s.policy.String())
	}
	return s, nil
}

// Delimiter returns a copy of the configured delimiter.
func (s *Splitter) Delimiter() []byte { return append([]byte(nil), s.delim...) }

// Policy returns the configured trailing partial policy.
func (s *Splitter) Policy() Policy { return s.policy }

// Append adds p to the held tail and returns every record completed by it,
// in stream order and without delimiters. Records may be empty. p is not
// retained. An empty p is a no-op.
//
// When a record grows past the maximum record size, Append returns the records
// completed before it together with a MALFORMED_RECORD error, and every later
// call fails with the same error.
func (s *Splitter) Append(p []byte) ([][]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.flushed {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "append after end-of-stream flush", http.StatusInternalServerError)
	}
	if len(p) == 0 {
		return nil, nil
	}

	s.buf = append(s.buf, p...)

	var records [][]byte
	start, from := 0, s.scanned
	for {
		i := bytes.Index(s.buf[from:], s.delim)
		if i < 0 {
			break
		}
		end := from + i
		if s.tooLong(end - start) {
			return records, s.fail()
		}
		// Capacity is clipped so a caller appending to a record cannot
		// overwrite the bytes of the next one.
		records = append(records, s.buf[start:end:end])
		start = end + len(s.delim)
		from = start
	}

	if len(records) > 0 {
		// The old backing array now belongs to the emitted records.
		s.buf = append([]byte(nil), s.buf[start:]...)
	}
	s.scanned = len(s.buf) - len(s.delim) + 1
	if s.scanned < 0 {
		s.scanned = 0
	}

	// Bytes before scanned belong to the next record whatever follows.
	if s.tooLong(s.scanned) {
		return records, s.fail()
	}
	return records, nil
}

// Flush ends the stream. It returns the trailing partial record exactly once
// under PolicyEmit when one is held; ok reports whether a record was returned.
// Under PolicyRequireDelimiter the tail is discarded. Later calls return
// ok=false.
func (s *Splitter) Flush() (record []byte, ok bool, err error) {
	if s.err != nil {
		return nil, false, s.err
	}
	if s.flushed {
		return nil, false, nil
	}
	s.flushed = true

	tail := s.buf
	s.buf, s.scanned = nil, 0
	if len(tail) == 0 {
		return nil, false, nil
	}
	if s.policy == PolicyRequireDelimiter {
		s.discarded += int64(len(tail))
		return nil, false, nil
	}
	if s.tooLong(len(tail)) {
		return nil, false, s.fail()
	}
	return tail, true, nil
}

// Pending returns the number of bytes held in the undelimited tail.
func (s *Splitter) Pending() int { return len(s.buf) }

// Discarded returns the number of trailing bytes dropped under PolicyRequireDelimiter.
func (s *Splitter) Discarded() int64 { return s.discarded }

// Reset clears all state so the Splitter can frame a new stream.
func (s *Splitter) Reset() {
	s.buf, s.scanned = nil, 0
	s.flushed = false
	s.discarded = 0
	s.err = nil
}

func (s *Splitter) tooLong(n int) bool {
	return s.maxRecord > 0 && n > s.maxRecord
}

func (s *Splitter) fail() error {
	s.err = apperrors.MalformedRecord(s.maxRecord)
	s.buf, s.scanned = nil, 0
	return s.err
}
