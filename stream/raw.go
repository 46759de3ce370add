package stream

import (
	"io"
	"net/http"
)

// RawSource is an opaque byte producer such as a file, socket or request body.
// Read returns up to maxBytes bytes. It returns io.EOF once exhausted; data and
// io.EOF may arrive together. The returned slice is owned by the caller.
type RawSource interface {
	Read(maxBytes int) ([]byte, error)
}

// RawSink is an opaque byte consumer. Write reports false when p was accepted
// but the consumer wants the producer to slow down. FlushAndClose commits
// buffered bytes and releases the consumer.
type RawSink interface {
	Write(p []byte) (bool, error)
	FlushAndClose() error
}

// maxEmptyReads bounds consecutive zero-byte reads before giving up.
const maxEmptyReads = 100

// ReaderSource adapts an io.Reader. The reader is borrowed and never closed.
func ReaderSource(r io.Reader) RawSource {
	return &readerSource{r: r}
}

type readerSource struct {
	r io.Reader
}

func (s *readerSource) Read(maxBytes int) ([]byte, error) {
	p := make([]byte, maxBytes)
	for i := 0; i < maxEmptyReads; i++ {
		n, err := s.r.Read(p)
		if n > 0 || err != nil {
			return p[:n:n], err
		}
	}
	return nil, io.ErrNoProgress
}

// WriterSink adapts an io.Writer. Writers implementing http.Flusher are flushed
// after every write so streamed responses reach the client. FlushAndClose
// flushes writers with a Flush() error method (such as *bufio.Writer) and
// closes writers implementing io.Closer, so the sink takes ownership of w.
// Use BorrowedWriterSink for writers the caller keeps, such as os.Stdout.
func WriterSink(w io.Writer) RawSink {
	return &writerSink{w: w}
}

// BorrowedWriterSink is WriterSink without the close: FlushAndClose only
// flushes.
func BorrowedWriterSink(w io.Writer) RawSink {
	return &writerSink{w: w, borrowed: true}
}

type writerSink struct {
	w        io.Writer
	borrowed bool
}

func (s *writerSink) Write(p []byte) (bool, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return false, err
	}
	if n < len(p) {
		return false, io.ErrShortWrite
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return true, nil
}

func (s *writerSink) FlushAndClose() error {
	switch f := s.w.(type) {
	case interface{ Flush() error }:
		if err := f.Flush(); err != nil {
			return err
		}
	case http.Flusher:
		f.Flush()
	}
	if s.borrowed {
		return nil
	}
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
