package encode

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/streamhouse/redshift-sink/pkg/models"
)

// PassthroughEncoder copies the chunk's native msgpack body verbatim.
// Non-empty whenever the chunk is non-empty; no schema, no row filtering.
type PassthroughEncoder struct {
	logger zerolog.Logger
}

// NewPassthroughEncoder creates a binary passthrough encoder.
func NewPassthroughEncoder(logger zerolog.Logger) *PassthroughEncoder {
	return &PassthroughEncoder{
		logger: logger.With().Str("component", "passthrough-encoder").Logger(),
	}
}

// NeedsSchema reports that passthrough encoding ignores the table schema.
func (e *PassthroughEncoder) NeedsSchema() bool { return false }

// Encode streams the raw chunk body to w.
func (e *PassthroughEncoder) Encode(ctx context.Context, columns []string, chunk *models.Chunk, w io.Writer) (int, error) {
	if _, err := chunk.WriteTo(w); err != nil {
		return 0, err
	}
	return chunk.Records(), nil
}
