package framing

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"pgregory.net/rapid"

	apperrors "github.com/kbukum/bytepipe/errors"
)

func mustSplitter(t *testing.T, delim string, opts ...Option) *Splitter {
	t.Helper()
	s, err := New([]byte(delim), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// feed appends every chunk and flushes, returning all records as strings.
func feed(t *testing.T, s *Splitter, chunks ...string) []string {
	t.Helper()
	var out []string
	for _, c := range chunks {
		recs, err := s.Append([]byte(c))
		if err != nil {
			t.Fatalf("Append(%q): %v", c, err)
		}
		for _, r := range recs {
			out = append(out, string(r))
		}
	}
	rec, ok, err := s.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if ok {
		out = append(out, string(rec))
	}
	return out
}

func TestNew_EmptyDelimiter(t *testing.T) {
	_, err := New(nil)
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestNew_NegativeMaxRecord(t *testing.T) {
	_, err := New([]byte("\n"), WithMaxRecordSize(-1))
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestAppend_RecordStraddlesChunks(t *testing.T) {
	s := mustSplitter(t, "\n")

	recs, err := s.Append([]byte("ab"))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %q", recs)
	}

	recs, err = s.Append([]byte("c\nde\nf"))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || string(recs[0]) != "abc" || string(recs[1]) != "de" {
		t.Fatalf("expected [abc de], got %q", recs)
	}
	if s.Pending() != 1 {
		t.Errorf("expected pending tail of 1 byte, got %d", s.Pending())
	}

	rec, ok, err := s.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(rec) != "f" {
		t.Fatalf("expected flushed tail 'f', got %q ok=%v", rec, ok)
	}
}

func TestFlush_EmitPolicy(t *testing.T) {
	got := feed(t, mustSplitter(t, ","), "a,b,c")
	want := []string{"a", "b", "c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFlush_RequireDelimiterPolicy(t *testing.T) {
	s := mustSplitter(t, ",", WithPolicy(PolicyRequireDelimiter))
	got := feed(t, s, "a,b,c")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("expected [a b], got %q", got)
	}
	if s.Discarded() != 1 {
		t.Errorf("expected 1 discarded byte, got %d", s.Discarded())
	}
}

func TestFlush_ExactlyOnce(t *testing.T) {
	s := mustSplitter(t, "\n")
	if _, err := s.Append([]byte("tail")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Flush(); !ok {
		t.Fatal("expected first flush to return the tail")
	}
	for i := 0; i < 3; i++ {
		if rec, ok, err := s.Flush(); ok || err != nil || rec != nil {
			t.Fatalf("flush %d: expected nothing, got %q %v %v", i, rec, ok, err)
		}
	}
}

func TestFlush_NoTail(t *testing.T) {
	got := feed(t, mustSplitter(t, "\n"), "a\nb\n")
	if len(got) != 2 {
		t.Errorf("expected exactly two records and no flushed tail, got %q", got)
	}
}

func TestAppend_EmptyChunkIsNoop(t *testing.T) {
	s := mustSplitter(t, "\n")
	if _, err := s.Append([]byte("ab")); err != nil {
		t.Fatal(err)
	}
	recs, err := s.Append(nil)
	if err != nil || recs != nil {
		t.Fatalf("expected no-op, got %q %v", recs, err)
	}
	recs, err = s.Append([]byte{})
	if err != nil || recs != nil {
		t.Fatalf("expected no-op, got %q %v", recs, err)
	}
	if s.Pending() != 2 {
		t.Errorf("expected pending to stay 2, got %d", s.Pending())
	}
}

func TestAppend_DelimitersOnlyYieldEmptyRecords(t *testing.T) {
	s := mustSplitter(t, "\n")
	recs, err := s.Append([]byte("\n\n\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 empty records, got %d", len(recs))
	}
	for i, r := range recs {
		if r == nil || len(r) != 0 {
			t.Errorf("record %d: expected non-nil empty record, got %#v", i, r)
		}
	}
	if _, ok, _ := s.Flush(); ok {
		t.Error("expected no trailing record after delimiter-only input")
	}
}

func TestAppend_MultiByteDelimiterAcrossChunks(t *testing.T) {
	got := feed(t, mustSplitter(t, "\r\n"), "one\r", "\ntw", "o\r", "\n", "\r\nthree")
	want := []string{"one", "two", "", "three"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAppend_RecordsDoNotAlias(t *testing.T) {
	s := mustSplitter(t, ",")
	input := []byte("aa,bb,cc")
	recs, err := s.Append(input)
	if err != nil {
		t.Fatal(err)
	}
	input[0] = 'X'
	recs[0] = append(recs[0], 'Z')
	if string(recs[1]) != "bb" {
		t.Errorf("appending to one record must not change the next, got %q", recs[1])
	}
	rec, _, _ := s.Flush()
	if string(rec) != "cc" {
		t.Errorf("tail must not alias emitted records or input, got %q", rec)
	}
}

func TestAppend_HoldsOnlyUnemittedBytes(t *testing.T) {
	s := mustSplitter(t, "\n")
	if _, err := s.Append([]byte(strings.Repeat("x", 100) + "\nyz")); err != nil {
		t.Fatal(err)
	}
	if s.Pending() != 2 {
		t.Fatalf("expected only the 2-byte tail to be held, got %d", s.Pending())
	}
	if cap(s.buf) > 16 {
		t.Errorf("expected emitted history to be released, tail capacity %d", cap(s.buf))
	}
}

func TestAppend_MaxRecordSize(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []string
		records []string
		wantErr bool
	}{
		{"within limit", []string{"abcd\n", "ef\n"}, []string{"abcd", "ef"}, false},
		{"complete record too long", []string{"ok\nabcdef\n"}, []string{"ok"}, true},
		{"tail too long", []string{"ok\nabc", "def"}, []string{"ok"}, true},
		{"partial delimiter does not count", []string{"abcd\r", "\n"}, []string{"abcd"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			delim := "\n"
			if strings.Contains(strings.Join(tc.chunks, ""), "\r") {
				delim = "\r\n"
			}
			s := mustSplitter(t, delim, WithMaxRecordSize(4))
			var got []string
			var err error
			for _, c := range tc.chunks {
				var recs [][]byte
				recs, err = s.Append([]byte(c))
				for _, r := range recs {
					got = append(got, string(r))
				}
				if err != nil {
					break
				}
			}
			if strings.Join(got, "|") != strings.Join(tc.records, "|") {
				t.Errorf("records: got %q, want %q", got, tc.records)
			}
			if tc.wantErr {
				if !apperrors.HasCode(err, apperrors.ErrCodeMalformedRecord) {
					t.Fatalf("expected MALFORMED_RECORD, got %v", err)
				}
				if _, again := s.Append([]byte("x\n")); again == nil {
					t.Error("expected the failure to be sticky")
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAppend_AfterFlush(t *testing.T) {
	s := mustSplitter(t, "\n")
	_, _, _ = s.Flush()
	if _, err := s.Append([]byte("x")); err == nil {
		t.Fatal("expected append after flush to fail")
	}
	s.Reset()
	if _, err := s.Append([]byte("x")); err != nil {
		t.Fatalf("expected Reset to allow reuse, got %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyEmit, false},
		{"emit", PolicyEmit, false},
		{"Require-Delimiter", PolicyRequireDelimiter, false},
		{"require_delimiter", PolicyRequireDelimiter, false},
		{"drop", PolicyEmit, true},
	}
	for _, tc := range tests {
		got, err := ParsePolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if err == nil && got != tc.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if PolicyRequireDelimiter.String() != "require-delimiter" {
		t.Errorf("unexpected String(): %s", PolicyRequireDelimiter)
	}
}

// splitAt cuts data at the given sorted, in-range offsets.
func splitAt(data []byte, cuts []int) [][]byte {
	var out [][]byte
	prev := 0
	for _, c := range cuts {
		out = append(out, data[prev:c])
		prev = c
	}
	return append(out, data[prev:])
}

func collect(t *rapid.T, delim []byte, policy Policy, chunks [][]byte) [][]byte {
	s, err := New(delim, WithPolicy(policy))
	if err != nil {
		t.Fatal(err)
	}
	var out [][]byte
	for _, c := range chunks {
		recs, err := s.Append(c)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, recs...)
	}
	if rec, ok, _ := s.Flush(); ok {
		out = append(out, rec)
	}
	return out
}

func TestSplitter_ChunkBoundaryIndependence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		delim := []byte(rapid.SampledFrom([]string{"\n", ",", "\r\n", "||"}).Draw(rt, "delim"))
		data := []byte(rapid.StringOfN(rapid.RuneFrom([]rune("ab,|\r\n")), 0, 200, -1).Draw(rt, "data"))
		policy := rapid.SampledFrom([]Policy{PolicyEmit, PolicyRequireDelimiter}).Draw(rt, "policy")

		cuts := rapid.SliceOfDistinct(rapid.IntRange(0, len(data)), rapid.ID[int]).Draw(rt, "cuts")
		sort.Ints(cuts)

		whole := collect(rt, delim, policy, [][]byte{data})
		chunked := collect(rt, delim, policy, splitAt(data, cuts))

		var single [][]byte
		for i := range data {
			single = append(single, data[i:i+1])
		}
		bytewise := collect(rt, delim, policy, single)

		for _, got := range [][][]byte{chunked, bytewise} {
			if len(got) != len(whole) {
				rt.Fatalf("record count differs: %d vs %d", len(got), len(whole))
			}
			for i := range whole {
				if !bytes.Equal(got[i], whole[i]) {
					rt.Fatalf("record %d differs: %q vs %q", i, got[i], whole[i])
				}
			}
		}

		// Records appear in stream order: rejoining them reproduces the input prefix.
		joined := bytes.Join(whole, delim)
		if !bytes.HasPrefix(data, joined) {
			rt.Fatalf("records out of order: %q is not a prefix of %q", joined, data)
		}
	})
}
