// Package sink runs the flush pipeline: encode a sealed chunk, compress
// it streamingly into a temp file, pick a collision-free storage key,
// upload, and bulk-load the staged artifact into the warehouse. One sink
// instance serves one table and one encoding; the buffer serializes its
// flushes, so nothing here needs locking.
package sink

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/streamhouse/redshift-sink/internal/encode"
	"github.com/streamhouse/redshift-sink/internal/journal"
	"github.com/streamhouse/redshift-sink/internal/storage"
	"github.com/streamhouse/redshift-sink/pkg/models"
)

// SchemaFetcher provides the target table's ordered column list.
type SchemaFetcher interface {
	Columns(ctx context.Context) ([]string, error)
}

// KeyGenerator produces a storage key no existing object occupies.
type KeyGenerator interface {
	Next(ctx context.Context, now time.Time) (string, error)
}

// LoadExecutor issues the warehouse bulk-load for a staged artifact.
type LoadExecutor interface {
	Load(ctx context.Context, uri string) error
}

// FlushJournal records flush outcomes. Optional.
type FlushJournal interface {
	Record(journal.Entry)
}

// Sink is the flush pipeline for one configured output instance.
type Sink struct {
	table   string
	encoder encode.Encoder
	schema  SchemaFetcher
	keys    KeyGenerator
	store   storage.Backend
	loader  LoadExecutor
	journal FlushJournal
	logger  zerolog.Logger
}

// New assembles a sink. journal may be nil.
func New(table string, encoder encode.Encoder, schema SchemaFetcher, keys KeyGenerator,
	store storage.Backend, loader LoadExecutor, jrnl FlushJournal, logger zerolog.Logger) *Sink {
	return &Sink{
		table:   table,
		encoder: encoder,
		schema:  schema,
		keys:    keys,
		store:   store,
		loader:  loader,
		journal: jrnl,
		logger:  logger.With().Str("component", "sink").Str("table", table).Logger(),
	}
}

// Format frames one record for buffering. Called by the host per record
// as it accumulates a chunk.
func (s *Sink) Format(tag string, ts time.Time, record models.Record) ([]byte, error) {
	return models.EncodeFrame(tag, ts, record)
}

// Write flushes one sealed chunk. skipped=true with a nil error means the
// chunk held no valid data and nothing was staged or loaded; that is a
// successful no-op for the caller. Any error is the caller's to retry or
// drop according to its own policy.
func (s *Sink) Write(ctx context.Context, chunk *models.Chunk) (skipped bool, err error) {
	if chunk.Records() == 0 {
		return true, nil
	}

	flushID := uuid.NewString()
	log := s.logger.With().Str("flush_id", flushID).Logger()

	// Schema is fetched fresh per flush; an empty schema aborts before a
	// single record is decoded.
	var columns []string
	if s.encoder.NeedsSchema() {
		columns, err = s.schema.Columns(ctx)
		if err != nil {
			return false, fmt.Errorf("schema fetch for table %s failed: %w", s.table, err)
		}
		if len(columns) == 0 {
			log.Warn().Msg("Target table has no columns, skipping flush")
			return true, nil
		}
	}

	rows, artifact, size, err := s.encodeToTemp(ctx, columns, chunk, log)
	if err != nil {
		return false, err
	}
	if artifact == "" {
		// Nothing usable in the chunk
		return true, nil
	}
	defer os.Remove(artifact)

	key, err := s.keys.Next(ctx, time.Now())
	if err != nil {
		return false, err
	}
	uri := s.store.URI(key)

	if err := s.upload(ctx, key, artifact, size); err != nil {
		s.record(flushID, uri, rows, size, "failed", err)
		return false, fmt.Errorf("upload of %s failed: %w", uri, err)
	}

	if err := s.loader.Load(ctx, uri); err != nil {
		s.record(flushID, uri, rows, size, "failed", err)
		return false, err
	}

	s.record(flushID, uri, rows, size, "loaded", nil)
	log.Info().
		Str("uri", uri).
		Int("rows", rows).
		Int64("bytes", size).
		Msg("Flush complete")

	return false, nil
}

// encodeToTemp streams the encoded chunk through gzip into a temp file.
// It returns an empty path when the encoder emitted nothing; the caller
// treats that as "no valid data". The temp file is removed on every
// failure path; on success the caller owns it.
func (s *Sink) encodeToTemp(ctx context.Context, columns []string, chunk *models.Chunk, log zerolog.Logger) (rows int, path string, size int64, err error) {
	tmp, err := os.CreateTemp("", "redshift-sink-*.gz")
	if err != nil {
		return 0, "", 0, fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	gz := gzip.NewWriter(tmp)
	counter := encode.NewCountingWriter(gz)

	rows, err = s.encoder.Encode(ctx, columns, chunk, counter)
	if err != nil {
		cleanup()
		return 0, "", 0, fmt.Errorf("encode failed: %w", err)
	}
	if err := gz.Close(); err != nil {
		cleanup()
		return 0, "", 0, fmt.Errorf("failed to finalize gzip stream: %w", err)
	}

	// Zero bytes through the compressor means every record was filtered
	// out; the gzip framing alone is not data.
	if counter.Count() == 0 {
		cleanup()
		log.Warn().
			Int("records", chunk.Records()).
			Msg("Chunk produced no encodable rows, skipping flush")
		return 0, "", 0, nil
	}

	info, err := tmp.Stat()
	if err != nil {
		cleanup()
		return 0, "", 0, fmt.Errorf("failed to stat temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, "", 0, fmt.Errorf("failed to close temp artifact: %w", err)
	}

	return rows, tmpPath, info.Size(), nil
}

// upload stages the compressed artifact under the generated key.
func (s *Sink) upload(ctx context.Context, key, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen artifact: %w", err)
	}
	defer f.Close()

	return s.store.WriteReader(ctx, key, f, size)
}

func (s *Sink) record(flushID, uri string, rows int, size int64, outcome string, err error) {
	if s.journal == nil {
		return
	}
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	s.journal.Record(journal.Entry{
		FlushID: flushID,
		Table:   s.table,
		URI:     uri,
		Rows:    rows,
		Bytes:   size,
		Outcome: outcome,
		Error:   errText,
	})
}
