package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Duplex wraps a bidirectional resource such as a socket. Its readable and
// writable halves have independent lifecycles: finishing the writable half
// half-closes the resource when it supports CloseWrite and leaves the readable
// half running. The resource itself is closed once both halves are done, or
// as soon as either is done when WithAutoClose is set.
type Duplex struct {
	rwc       io.ReadWriteCloser
	autoClose bool
	readable  *Readable
	writable  *Writable

	mu        sync.Mutex
	readDone  bool
	writeDone bool
	closed    bool
	closeErr  error
}

// NewDuplex wraps rwc. Stage options apply to both halves; names get "/read"
// and "/write" suffixes.
func NewDuplex(rwc io.ReadWriteCloser, opts ...StageOption) *Duplex {
	o := newStageOptions("duplex", opts)
	d := &Duplex{rwc: rwc, autoClose: o.autoClose}
	d.readable = FromRaw(&duplexReader{d: d}, append(opts, WithName(o.name+"/read"))...)
	d.writable = ToRaw(&duplexWriter{d: d}, append(opts, WithName(o.name+"/write"))...)
	return d
}

// Readable returns the readable half.
func (d *Duplex) Readable() *Readable { return d.readable }

// Writable returns the writable half.
func (d *Duplex) Writable() *Writable { return d.writable }

// Close closes the underlying resource regardless of the halves' state.
func (d *Duplex) Close() error {
	return d.closeResource()
}

// Closed reports whether the underlying resource has been closed.
func (d *Duplex) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Duplex) halfDone(read bool) error {
	d.mu.Lock()
	if read {
		d.readDone = true
	} else {
		d.writeDone = true
	}
	closeNow := d.autoClose || (d.readDone && d.writeDone)
	d.mu.Unlock()

	if closeNow {
		return d.closeResource()
	}
	return nil
}

func (d *Duplex) closeResource() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.closeErr = d.rwc.Close()
	return d.closeErr
}

func (d *Duplex) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type duplexReader struct {
	d *Duplex
}

func (r *duplexReader) Read(maxBytes int) ([]byte, error) {
	p := make([]byte, maxBytes)
	n, err := r.d.rwc.Read(p)
	if err != nil {
		// Reads interrupted by our own close end the half normally.
		if errors.Is(err, io.EOF) || r.d.isClosed() {
			err = io.EOF
			if cerr := r.d.halfDone(true); cerr != nil {
				err = cerr
			}
		}
	}
	return p[:n:n], err
}

func (r *duplexReader) Close() error {
	return r.d.halfDone(true)
}

type duplexWriter struct {
	d *Duplex
}

func (w *duplexWriter) Write(p []byte) (bool, error) {
	n, err := w.d.rwc.Write(p)
	if err != nil {
		return false, err
	}
	if n < len(p) {
		return false, io.ErrShortWrite
	}
	return true, nil
}

func (w *duplexWriter) FlushAndClose() error {
	if cw, ok := w.d.rwc.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return err
		}
	}
	return w.d.halfDone(false)
}

// Bridge pipes a's readable half into b's writable half and b's readable half
// into a's writable half as two independent pipelines. It returns when both
// directions have finished, or with the first failure after cancelling the
// other direction.
func Bridge(ctx context.Context, a, b *Duplex, opts ...PipelineOption) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return New(a.Readable(), b.Writable(), opts...).Run(gctx)
	})
	g.Go(func() error {
		return New(b.Readable(), a.Writable(), opts...).Run(gctx)
	})
	return g.Wait()
}
