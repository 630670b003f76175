// Package buffer accumulates formatted records and hands sealed chunks to
// the sink, one flush at a time. It owns the retry policy the pipeline
// itself deliberately lacks: a skipped flush is a successful no-op, a
// retryable failure re-runs the whole flush with backoff, and a
// non-retryable failure drops the chunk rather than poisoning the queue.
package buffer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamhouse/redshift-sink/pkg/models"
)

// Output is the sink side of the host contract: a per-record framing hook
// and a per-chunk flush hook.
type Output interface {
	Format(tag string, ts time.Time, record models.Record) ([]byte, error)
	Write(ctx context.Context, chunk *models.Chunk) (skipped bool, err error)
}

// Config tunes chunk sealing and flush retries.
type Config struct {
	MaxRecords    int
	MaxBytes      int
	FlushInterval time.Duration
	RetryLimit    int
	RetryWait     time.Duration
}

// Buffer accumulates records into the open chunk and drives flushes.
type Buffer struct {
	out    Output
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	body    bytes.Buffer
	records int

	pending chan *models.Chunk
}

// New creates a buffer in front of out.
func New(out Output, cfg Config, logger zerolog.Logger) *Buffer {
	return &Buffer{
		out:     out,
		cfg:     cfg,
		logger:  logger.With().Str("component", "buffer").Logger(),
		pending: make(chan *models.Chunk, 16),
	}
}

// Append formats one record into the open chunk, sealing it when the
// record or byte limit is reached.
func (b *Buffer) Append(tag string, ts time.Time, record models.Record) error {
	frame, err := b.out.Format(tag, ts, record)
	if err != nil {
		return fmt.Errorf("failed to format record: %w", err)
	}

	b.mu.Lock()
	b.body.Write(frame)
	b.records++
	full := b.records >= b.cfg.MaxRecords || b.body.Len() >= b.cfg.MaxBytes
	var chunk *models.Chunk
	if full {
		chunk = b.sealLocked()
	}
	b.mu.Unlock()

	if chunk != nil {
		b.enqueue(chunk)
	}
	return nil
}

// Seal seals the open chunk, if any, and queues it for flushing.
func (b *Buffer) Seal() {
	b.mu.Lock()
	chunk := b.sealLocked()
	b.mu.Unlock()

	if chunk != nil {
		b.enqueue(chunk)
	}
}

// sealLocked snapshots and resets the open chunk. Caller holds mu.
func (b *Buffer) sealLocked() *models.Chunk {
	if b.records == 0 {
		return nil
	}
	body := make([]byte, b.body.Len())
	copy(body, b.body.Bytes())
	chunk := models.NewChunk(body, b.records)
	b.body.Reset()
	b.records = 0
	return chunk
}

func (b *Buffer) enqueue(chunk *models.Chunk) {
	b.pending <- chunk
}

// Run drives interval sealing and flushes queued chunks serially until
// ctx is cancelled, then drains: the open chunk is sealed and every
// queued chunk gets one final flush pass.
func (b *Buffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return b.drain()
		case <-ticker.C:
			b.Seal()
		case chunk := <-b.pending:
			b.flush(ctx, chunk)
		}
	}
}

// drain flushes everything left after shutdown was requested. Each chunk
// gets one attempt on a fresh context; anything that still fails is lost
// and logged as such.
func (b *Buffer) drain() error {
	b.Seal()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for {
		select {
		case chunk := <-b.pending:
			if _, err := b.out.Write(ctx, chunk); err != nil {
				b.logger.Error().
					Err(err).
					Int("records", chunk.Records()).
					Msg("Lost chunk during shutdown drain")
			}
		default:
			return nil
		}
	}
}

// flush writes one chunk with the retry policy. Non-retryable errors
// (the data itself is at fault) drop the chunk immediately; everything
// else retries with exponential backoff up to the limit.
func (b *Buffer) flush(ctx context.Context, chunk *models.Chunk) {
	wait := b.cfg.RetryWait

	for attempt := 1; ; attempt++ {
		skipped, err := b.out.Write(ctx, chunk)
		if err == nil {
			if skipped {
				b.logger.Debug().Int("records", chunk.Records()).Msg("Flush skipped, no valid data")
			}
			return
		}

		var r interface{ Retryable() bool }
		if errors.As(err, &r) && !r.Retryable() {
			b.logger.Error().
				Err(err).
				Int("records", chunk.Records()).
				Msg("Dropping chunk, flush failed on data")
			return
		}

		if attempt >= b.cfg.RetryLimit {
			b.logger.Error().
				Err(err).
				Int("records", chunk.Records()).
				Int("attempts", attempt).
				Msg("Dropping chunk, retry limit reached")
			return
		}

		b.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Flush failed, will retry")

		select {
		case <-ctx.Done():
			b.logger.Error().Int("records", chunk.Records()).Msg("Dropping chunk, shutdown during retry")
			return
		case <-time.After(wait):
			wait *= 2
		}
	}
}

// Len returns the records currently in the open chunk.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records
}
