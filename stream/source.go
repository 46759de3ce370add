package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Source is the readable end of a pipeline. Nothing is produced without a
// pull: Next returns (chunk, true, nil) for data, (zero, false, nil) at end of
// stream and (zero, false, err) on failure. Once a source has ended every
// later pull reports end of stream again; a failure is repeated on every
// later pull.
type Source interface {
	Next(ctx context.Context) (Chunk, bool, error)
	Close() error
}

// Pausable is implemented by sources that can hold back data on request.
// While paused a pull blocks until Resume or until its context ends.
type Pausable interface {
	Pause()
	Resume()
}

// SourceState is the lifecycle state of a readable source.
type SourceState int

const (
	SourceIdle SourceState = iota
	SourcePulling
	SourcePaused
	SourceEnded
	SourceFailed
)

func (s SourceState) String() string {
	switch s {
	case SourceIdle:
		return "idle"
	case SourcePulling:
		return "pulling"
	case SourcePaused:
		return "paused"
	case SourceEnded:
		return "ended"
	case SourceFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Readable is a Source reading from a RawSource.
type Readable struct {
	binding
	name     string
	raw      RawSource
	readSize int

	mu        sync.Mutex
	pulling   bool
	paused    bool
	resume    chan struct{}
	ended     bool
	err       error
	rawClosed bool
}

// FromRaw returns a Source pulling from raw.
func FromRaw(raw RawSource, opts ...StageOption) *Readable {
	o := newStageOptions("source", opts)
	return &Readable{name: o.name, raw: raw, readSize: o.readSize}
}

// FromReader returns a Source pulling from r. The reader is borrowed.
func FromReader(r io.Reader, opts ...StageOption) *Readable {
	return FromRaw(ReaderSource(r), opts...)
}

// Next pulls the next chunk from the raw source. Empty reads are skipped.
func (r *Readable) Next(ctx context.Context) (Chunk, bool, error) {
	for {
		if err := r.waitResumed(ctx); err != nil {
			return Chunk{}, false, err
		}

		r.mu.Lock()
		if r.err != nil {
			err := r.err
			r.mu.Unlock()
			return Chunk{}, false, err
		}
		if r.ended {
			r.mu.Unlock()
			return Chunk{}, false, nil
		}
		r.pulling = true
		r.mu.Unlock()

		p, err := r.raw.Read(r.readSize)

		r.mu.Lock()
		r.pulling = false
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			r.ended = true
		default:
			r.err = asSourceErr(ctx, err)
		}
		r.mu.Unlock()

		// Bytes delivered together with an error are returned first; the end
		// or failure is reported by the next pull.
		if len(p) > 0 {
			return OwnChunk(p), true, nil
		}
	}
}

func (r *Readable) waitResumed(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}
		r.mu.Lock()
		if !r.paused || r.ended || r.err != nil {
			r.mu.Unlock()
			return nil
		}
		wait := r.resume
		r.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return cancelled(ctx)
		}
	}
}

// Pause makes later pulls block until Resume. A pull already reading from the
// raw source completes and returns its data.
func (r *Readable) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return
	}
	r.paused = true
	r.resume = make(chan struct{})
}

// Resume releases pulls blocked by Pause.
func (r *Readable) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		return
	}
	r.paused = false
	close(r.resume)
}

// State returns the current lifecycle state.
func (r *Readable) State() SourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.err != nil:
		return SourceFailed
	case r.ended:
		return SourceEnded
	case r.paused:
		return SourcePaused
	case r.pulling:
		return SourcePulling
	default:
		return SourceIdle
	}
}

// Close ends the source and wakes paused pulls. Raw sources implementing
// io.Closer are closed exactly once, also after the source has ended or failed.
func (r *Readable) Close() error {
	r.mu.Lock()
	if !r.ended && r.err == nil {
		r.ended = true
	}
	if r.paused {
		r.paused = false
		close(r.resume)
	}
	closeRaw := !r.rawClosed
	r.rawClosed = true
	r.mu.Unlock()

	if c, ok := r.raw.(io.Closer); ok && closeRaw {
		return c.Close()
	}
	return nil
}

// FromChunks returns a Source yielding the given chunks in order.
func FromChunks(chunks ...Chunk) Source {
	return &sliceSource{chunks: chunks}
}

// FromStrings returns a Source yielding one chunk per string.
func FromStrings(parts ...string) Source {
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = NewChunk([]byte(p))
	}
	return &sliceSource{chunks: chunks}
}

type sliceSource struct {
	binding
	mu     sync.Mutex
	chunks []Chunk
	index  int
}

func (s *sliceSource) Next(ctx context.Context) (Chunk, bool, error) {
	if ctx.Err() != nil {
		return Chunk{}, false, cancelled(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.chunks) {
		return Chunk{}, false, nil
	}
	c := s.chunks[s.index]
	s.chunks[s.index] = Chunk{}
	s.index++
	return c, true, nil
}

func (s *sliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = len(s.chunks)
	return nil
}
