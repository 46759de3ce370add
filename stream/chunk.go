package stream

// Chunk is an immutable run of bytes moved between stages. A Chunk is owned by
// exactly one stage at a time; handing it to the next stage transfers
// ownership. The zero Chunk is empty.
type Chunk struct {
	b []byte
}

// NewChunk returns a Chunk holding a copy of p.
func NewChunk(p []byte) Chunk {
	if len(p) == 0 {
		return Chunk{b: []byte{}}
	}
	return Chunk{b: append([]byte(nil), p...)}
}

// OwnChunk returns a Chunk backed by p. The caller must not modify p afterwards.
func OwnChunk(p []byte) Chunk {
	if p == nil {
		p = []byte{}
	}
	return Chunk{b: p}
}

// Bytes returns a read-only view of the chunk. Callers must not modify it.
func (c Chunk) Bytes() []byte { return c.b }

// Len returns the number of bytes in the chunk.
func (c Chunk) Len() int { return len(c.b) }

// IsEmpty reports whether the chunk carries no bytes.
func (c Chunk) IsEmpty() bool { return len(c.b) == 0 }

// String returns the chunk contents as a string.
func (c Chunk) String() string { return string(c.b) }
