// Package encode turns a sealed chunk of buffered records into the byte
// stream that gets staged to object storage: either delimited rows driven
// by the warehouse table's column order, or the chunk's raw binary body.
package encode

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/streamhouse/redshift-sink/pkg/models"
)

// Encoder converts one chunk into an encoded artifact written to w.
// It returns the number of rows emitted; zero rows with a nil error means
// "no valid data" and the flush short-circuits without any I/O.
type Encoder interface {
	Encode(ctx context.Context, columns []string, chunk *models.Chunk, w io.Writer) (rows int, err error)

	// NeedsSchema reports whether the encoder consumes the warehouse
	// column order. Only structured-text encoders do; the orchestrator
	// skips the schema fetch entirely for the rest.
	NeedsSchema() bool
}

// New returns the encoder for a file type, with the delimiter already
// resolved (explicit override wins, otherwise the file-type default).
func New(ft FileType, delimiter string, recordLogField string, logger zerolog.Logger) (Encoder, error) {
	switch ft {
	case FileTypeJSON, FileTypeTSV, FileTypeCSV:
		return NewDelimitedEncoder(delimiter, recordLogField, logger), nil
	case FileTypeMsgpack:
		return NewPassthroughEncoder(logger), nil
	default:
		return nil, fmt.Errorf("no encoder for file type %q", ft)
	}
}

// CountingWriter counts bytes written through it. The flush pipeline puts
// one between the encoder and the gzip writer so "zero bytes emitted" is
// observable even though gzip always writes its own framing.
type CountingWriter struct {
	w io.Writer
	n int64
}

// NewCountingWriter wraps w.
func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{w: w}
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Count returns the number of bytes written so far.
func (c *CountingWriter) Count() int64 {
	return c.n
}
