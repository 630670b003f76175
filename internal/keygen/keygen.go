// Package keygen produces collision-free storage keys for staged
// artifacts. Keys follow {prefix}{strftime-stamp}_{NN}.gz; the counter
// disambiguates flushes landing in the same timestamp bucket.
package keygen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ncruces/go-strftime"
	"github.com/rs/zerolog"

	"github.com/streamhouse/redshift-sink/internal/storage"
)

// maxAttempts bounds the existence-probe loop. One probe per attempt is
// the dominant latency source under sub-minute flush intervals, and an
// unbounded loop can only mean the bucket is misconfigured or the stamp
// pattern too coarse, so give up loudly instead of spinning.
const maxAttempts = 1000

// ErrKeySpaceExhausted is returned when every candidate key in the
// timestamp bucket already exists.
var ErrKeySpaceExhausted = errors.New("keygen: no free key in timestamp bucket")

// Generator probes storage for a key no existing object occupies.
type Generator struct {
	backend storage.Backend
	prefix  string
	pattern string // strftime pattern
	utc     bool
	logger  zerolog.Logger
}

// New creates a key generator.
func New(backend storage.Backend, prefix, pattern string, utc bool, logger zerolog.Logger) *Generator {
	return &Generator{
		backend: backend,
		prefix:  prefix,
		pattern: pattern,
		utc:     utc,
		logger:  logger.With().Str("component", "keygen").Logger(),
	}
}

// Next returns a key whose object does not exist yet. The timestamp is
// formatted once; only the numeric suffix moves between attempts, so two
// calls in the same bucket can never return the same key as long as the
// first object was written before the second call probes.
func (g *Generator) Next(ctx context.Context, now time.Time) (string, error) {
	if g.utc {
		now = now.UTC()
	}
	stamp := strftime.Format(g.pattern, now)

	for n := 0; n < maxAttempts; n++ {
		// %02d widens naturally past 99 collisions
		key := fmt.Sprintf("%s%s_%02d.gz", g.prefix, stamp, n)

		exists, err := g.backend.Exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to probe key %s: %w", key, err)
		}
		if !exists {
			if n > 0 {
				g.logger.Debug().
					Str("key", key).
					Int("collisions", n).
					Msg("Resolved key after collisions")
			}
			return key, nil
		}
	}

	return "", fmt.Errorf("%w: prefix=%s stamp=%s attempts=%d", ErrKeySpaceExhausted, g.prefix, stamp, maxAttempts)
}
