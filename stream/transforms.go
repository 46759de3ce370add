package stream

import (
	"context"
	"encoding/hex"
	"hash"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"

	"github.com/kbukum/bytepipe/framing"
)

// Map returns a stage emitting fn(c) for every input chunk.
func Map(fn func(context.Context, Chunk) (Chunk, error), opts ...StageOption) *Transform {
	return NewTransform(func(ctx context.Context, c Chunk, emit Emit) error {
		out, err := fn(ctx, c)
		if err != nil {
			return err
		}
		emit(out)
		return nil
	}, nil, withDefaultName("map", opts)...)
}

// Filter returns a stage passing only chunks for which keep returns true.
func Filter(keep func(Chunk) bool, opts ...StageOption) *Transform {
	return NewTransform(func(_ context.Context, c Chunk, emit Emit) error {
		if keep(c) {
			emit(c)
		}
		return nil
	}, nil, withDefaultName("filter", opts)...)
}

// Tap returns a pass-through stage calling fn for every chunk.
func Tap(fn func(context.Context, Chunk) error, opts ...StageOption) *Transform {
	return NewTransform(func(ctx context.Context, c Chunk, emit Emit) error {
		if err := fn(ctx, c); err != nil {
			return err
		}
		emit(c)
		return nil
	}, nil, withDefaultName("tap", opts)...)
}

// Split returns a stage turning arbitrarily chunked input into one chunk per
// record, using s to reassemble records across chunk boundaries. Records are
// emitted without their delimiter and may be empty. The trailing partial
// record is handled at end of stream according to the splitter's policy.
func Split(s *framing.Splitter, opts ...StageOption) *Transform {
	return NewTransform(func(_ context.Context, c Chunk, emit Emit) error {
		records, err := s.Append(c.Bytes())
		for _, r := range records {
			emit(OwnChunk(r))
		}
		return err
	}, func(_ context.Context, emit Emit) error {
		rec, ok, err := s.Flush()
		if ok {
			emit(OwnChunk(rec))
		}
		return err
	}, withDefaultName("split", opts)...)
}

// Join returns a stage terminating every input chunk with delim.
func Join(delim []byte, opts ...StageOption) *Transform {
	d := append([]byte(nil), delim...)
	return NewTransform(func(_ context.Context, c Chunk, emit Emit) error {
		p := make([]byte, 0, c.Len()+len(d))
		p = append(p, c.Bytes()...)
		emit(OwnChunk(append(p, d...)))
		return nil
	}, nil, withDefaultName("join", opts)...)
}

// Rechunk returns a stage re-slicing input into chunks of exactly size bytes.
// The final chunk may be shorter. A non-positive size selects DefaultReadSize.
func Rechunk(size int, opts ...StageOption) *Transform {
	if size <= 0 {
		size = DefaultReadSize
	}
	var pending []byte
	return NewTransform(func(_ context.Context, c Chunk, emit Emit) error {
		pending = append(pending, c.Bytes()...)
		for len(pending) >= size {
			emit(NewChunk(pending[:size]))
			pending = pending[size:]
		}
		if len(pending) == 0 {
			pending = nil
		}
		return nil
	}, func(_ context.Context, emit Emit) error {
		if len(pending) > 0 {
			emit(OwnChunk(pending))
			pending = nil
		}
		return nil
	}, withDefaultName("rechunk", opts)...)
}

// Throttle returns a pass-through stage limiting throughput to bytesPerSec.
// A non-positive rate disables limiting.
func Throttle(bytesPerSec int, opts ...StageOption) *Transform {
	limit, burst := rate.Inf, 0
	if bytesPerSec > 0 {
		limit, burst = rate.Limit(bytesPerSec), bytesPerSec
	}
	limiter := rate.NewLimiter(limit, burst)
	return NewTransform(func(ctx context.Context, c Chunk, emit Emit) error {
		if bytesPerSec > 0 {
			// WaitN rejects requests larger than the burst.
			for n := c.Len(); n > 0; n -= burst {
				if err := limiter.WaitN(ctx, min(n, burst)); err != nil {
					return err
				}
			}
		}
		emit(c)
		return nil
	}, nil, withDefaultName("throttle", opts)...)
}

// Digest accumulates a BLAKE2b-256 checksum of the bytes passing a Checksum
// stage.
type Digest struct {
	mu sync.Mutex
	h  hash.Hash
	n  int64
}

// Sum returns the checksum of the bytes seen so far.
func (d *Digest) Sum() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.h.Sum(nil)
}

// Hex returns Sum as a lowercase hex string.
func (d *Digest) Hex() string { return hex.EncodeToString(d.Sum()) }

// Bytes returns the number of bytes seen so far.
func (d *Digest) Bytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

func (d *Digest) write(p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.h.Write(p)
	d.n += int64(len(p))
}

// Checksum returns a pass-through stage hashing every byte with BLAKE2b-256.
// The digest is complete once the pipeline has finished.
func Checksum(opts ...StageOption) (*Transform, *Digest) {
	h, _ := blake2b.New256(nil) // only fails for oversized keys
	d := &Digest{h: h}
	return NewTransform(func(_ context.Context, c Chunk, emit Emit) error {
		d.write(c.Bytes())
		emit(c)
		return nil
	}, nil, withDefaultName("checksum", opts)...), d
}

func withDefaultName(name string, opts []StageOption) []StageOption {
	return append([]StageOption{WithName(name)}, opts...)
}
