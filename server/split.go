package server

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/bytepipe/errors"
	"github.com/kbukum/bytepipe/logger"
	"github.com/kbukum/bytepipe/observability"
	"github.com/kbukum/bytepipe/stream"
)

// TrailerStreamError names the trailer carrying the error code of a stream
// that failed after the response had started.
const TrailerStreamError = "X-Stream-Error"

// AttrStreamError is the span attribute carrying the same code.
const AttrStreamError = "stream.error"

// ChecksumResponse is the body of POST /v1/checksum.
type ChecksumResponse struct {
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`
	Bytes     int64  `json:"bytes"`
}

// handleSplit streams the request body through Split and Join into the
// response. Query parameters delimiter, policy and out override the configured
// framing for this request.
func (s *Server) handleSplit(c *gin.Context) {
	cfg := s.stream
	if d, ok := c.GetQuery("delimiter"); ok {
		cfg.Delimiter = d
	}
	if p, ok := c.GetQuery("policy"); ok {
		cfg.TrailingPartialPolicy = p
	}
	if o, ok := c.GetQuery("out"); ok {
		cfg.OutputDelimiter = o
	}
	if err := cfg.Validate(); err != nil {
		RespondWithError(c, err)
		return
	}
	splitter, err := cfg.Splitter()
	if err != nil {
		RespondWithError(c, err)
		return
	}

	stages := []*stream.Transform{
		stream.Split(splitter, cfg.StageOptions()...),
		stream.Join(cfg.OutputDelimiterBytes(), cfg.StageOptions()...),
	}
	if bps := cfg.BytesPerSecond(); bps > 0 {
		stages = append(stages, stream.Throttle(bps, cfg.StageOptions()...))
	}

	out := newResponseSink(c.Writer, "application/octet-stream")
	s.runStream(c, out, stages...)
}

// handleChecksum digests the request body with BLAKE2b-256.
func (s *Server) handleChecksum(c *gin.Context) {
	sum, digest := stream.Checksum(s.stream.StageOptions()...)
	discard := stream.ToWriter(io.Discard, s.stream.StageOptions()...)
	if err := s.pipeline(c, discard, sum).Run(c.Request.Context()); err != nil {
		RespondWithError(c, bodyError(err))
		return
	}
	RespondOK(c, ChecksumResponse{
		Algorithm: "blake2b-256",
		Digest:    digest.Hex(),
		Bytes:     digest.Bytes(),
	})
}

func (s *Server) pipeline(c *gin.Context, sink stream.Sink, stages ...*stream.Transform) *stream.Pipeline {
	src := stream.FromReader(c.Request.Body, append(s.stream.StageOptions(), stream.WithName("body"))...)
	opts := []stream.PipelineOption{
		stream.WithLogger(s.log),
		stream.WithMetrics(s.streamMetrics),
	}
	if id := logger.RequestIDFromContext(c.Request.Context()); id != "" {
		opts = append(opts, stream.WithID(id))
	}
	return stream.New(src, sink, opts...).Through(stages...)
}

// runStream runs body -> stages -> out. Failures before the first response
// byte become a JSON error; later ones are reported in the trailer.
func (s *Server) runStream(c *gin.Context, out *responseSink, stages ...*stream.Transform) {
	ctx := c.Request.Context()
	sink := stream.ToRaw(out, append(s.stream.StageOptions(), stream.WithName("response"))...)
	err := s.pipeline(c, sink, stages...).Run(ctx)
	started := out.detach()
	if err == nil {
		if !started {
			c.Header("Content-Type", out.contentType)
			c.Status(http.StatusOK)
		}
		return
	}
	if !started {
		RespondWithError(c, bodyError(err))
		return
	}
	appErr := apperrors.Wrap(err)
	c.Writer.Header().Set(TrailerStreamError, string(appErr.Code))
	// The request span ends with status 200, so the failure goes on it here.
	observability.SetSpanAttribute(ctx, AttrStreamError, string(appErr.Code))
	observability.SetSpanError(ctx, err)
	s.log.WithContext(ctx).WithError(err).Warn("Stream failed after response started")
}

// bodyError reports an oversized request body as 413 rather than a read failure.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.New(apperrors.ErrCodeSourceRead, "request body too large", http.StatusRequestEntityTooLarge).
			WithDetail("limit", tooLarge.Limit).
			WithCause(err)
	}
	return err
}

// responseSink writes pipeline output to the HTTP response. The status line is
// sent with the first byte so failures before it can still produce an error
// body. After detach every write fails, since the handler has returned.
type responseSink struct {
	mu          sync.Mutex
	w           gin.ResponseWriter
	contentType string
	started     bool
	detached    bool
}

var errResponseDone = errors.New("response already completed")

func newResponseSink(w gin.ResponseWriter, contentType string) *responseSink {
	return &responseSink{w: w, contentType: contentType}
}

func (r *responseSink) Write(p []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return false, errResponseDone
	}
	r.startLocked()
	if _, err := r.w.Write(p); err != nil {
		return false, err
	}
	r.w.Flush()
	return true, nil
}

func (r *responseSink) FlushAndClose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return errResponseDone
	}
	if r.started {
		r.w.Flush()
	}
	return nil
}

func (r *responseSink) startLocked() {
	if r.started {
		return
	}
	r.started = true
	h := r.w.Header()
	h.Set("Content-Type", r.contentType)
	h.Set("Trailer", TrailerStreamError)
	r.w.WriteHeader(http.StatusOK)
}

// detach stops further writes and reports whether the response has started.
func (r *responseSink) detach() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
	return r.started
}
