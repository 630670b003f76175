package models

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame is one buffered record as it sits inside a chunk: the tag it was
// ingested under, its event time (unix seconds) and the record itself.
// Frames are msgpack-encoded as a three-element array, so the chunk body
// doubles as the binary passthrough upload format.
type Frame struct {
	_msgpack struct{} `msgpack:",as_array"`

	Tag    string
	Time   int64
	Record Record
}

// EncodeFrame serializes one record into its chunk frame.
func EncodeFrame(tag string, ts time.Time, record Record) ([]byte, error) {
	data, err := msgpack.Marshal(&Frame{Tag: tag, Time: ts.Unix(), Record: record})
	if err != nil {
		return nil, fmt.Errorf("failed to encode record frame: %w", err)
	}
	return data, nil
}

// Chunk is a sealed, ordered batch of record frames handed to the sink for
// exactly one flush. The buffer owns chunk construction; once sealed a
// chunk is immutable and the sink only reads it.
type Chunk struct {
	body    []byte
	records int
	sealed  time.Time
}

// NewChunk builds a sealed chunk from concatenated frames. The byte slice
// is owned by the chunk from this point on.
func NewChunk(body []byte, records int) *Chunk {
	return &Chunk{body: body, records: records, sealed: time.Now()}
}

// Records returns the number of frames in the chunk.
func (c *Chunk) Records() int { return c.records }

// Size returns the chunk body size in bytes.
func (c *Chunk) Size() int { return len(c.body) }

// SealedAt returns the time the chunk was sealed.
func (c *Chunk) SealedAt() time.Time { return c.sealed }

// WriteTo copies the raw chunk body to w. This is the binary passthrough
// encoding: the msgpack frames go out exactly as they were buffered.
func (c *Chunk) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.body)
	return int64(n), err
}

// Iter returns an iterator over the chunk's frames.
func (c *Chunk) Iter() *ChunkIter {
	return &ChunkIter{dec: msgpack.NewDecoder(bytes.NewReader(c.body))}
}

// ChunkIter decodes chunk frames one at a time so large chunks never need
// a fully materialized record slice.
type ChunkIter struct {
	dec *msgpack.Decoder
}

// Next decodes the next frame. It returns io.EOF after the last frame.
func (it *ChunkIter) Next() (*Frame, error) {
	var f Frame
	if err := it.dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode record frame: %w", err)
	}
	return &f, nil
}
