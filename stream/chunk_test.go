package stream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewChunk_Copies(t *testing.T) {
	p := []byte("abc")
	c := NewChunk(p)
	p[0] = 'X'
	if c.String() != "abc" {
		t.Errorf("expected chunk to be isolated from its input, got %q", c)
	}
	if c.Len() != 3 || c.IsEmpty() {
		t.Errorf("unexpected length %d", c.Len())
	}
}

func TestOwnChunk_TakesSlice(t *testing.T) {
	p := []byte("abc")
	c := OwnChunk(p)
	if &c.Bytes()[0] != &p[0] {
		t.Error("expected OwnChunk to keep the given backing array")
	}
	if OwnChunk(nil).Bytes() == nil {
		t.Error("expected OwnChunk(nil) to yield an empty, non-nil chunk")
	}
}

func TestChunk_Zero(t *testing.T) {
	var c Chunk
	if !c.IsEmpty() || c.Len() != 0 || c.String() != "" {
		t.Errorf("expected zero chunk to be empty, got %q", c)
	}
	if !NewChunk(nil).IsEmpty() {
		t.Error("expected NewChunk(nil) to be empty")
	}
}

func TestSignal_FiresOnce(t *testing.T) {
	s := newSignal()
	if fired(s) {
		t.Fatal("new signal must be pending")
	}
	s.fire()
	s.fire()
	s.fail(errors.New("late"))
	if !fired(s) {
		t.Fatal("expected signal to fire")
	}
	if s.Err() != nil {
		t.Errorf("a fired signal carries no error, got %v", s.Err())
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestSignal_Fail(t *testing.T) {
	s := newSignal()
	boom := errors.New("boom")
	s.fail(boom)
	if err := s.Wait(context.Background()); err != boom {
		t.Errorf("expected failure to be reported, got %v", err)
	}
}

func TestSignal_WaitCancelled(t *testing.T) {
	s := newSignal()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected CANCELLED, got %v", err)
	}
	if s.Err() != nil {
		t.Error("pending signal must report no error")
	}
}
