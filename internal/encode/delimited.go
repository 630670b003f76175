package encode

import (
	"bufio"
	"context"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/streamhouse/redshift-sink/pkg/models"
)

// snippetLimit caps how much of a bad payload makes it into a warning.
const snippetLimit = 256

// DelimitedEncoder emits one quoted, delimited row per record, with fields
// ordered by the warehouse table's column order. Records whose payload
// cannot be parsed, or that resolve every column to null, are skipped with
// a warning; a bad record never aborts the chunk.
type DelimitedEncoder struct {
	delimiter      string
	recordLogField string
	logger         zerolog.Logger
}

// NewDelimitedEncoder creates a structured-text encoder.
func NewDelimitedEncoder(delimiter, recordLogField string, logger zerolog.Logger) *DelimitedEncoder {
	return &DelimitedEncoder{
		delimiter:      delimiter,
		recordLogField: recordLogField,
		logger:         logger.With().Str("component", "delimited-encoder").Logger(),
	}
}

// NeedsSchema reports that delimited encoding is schema-driven.
func (e *DelimitedEncoder) NeedsSchema() bool { return true }

// Encode writes one row per usable record to w. The caller guarantees
// columns is non-empty; an empty schema aborts the flush before Encode
// is reached.
func (e *DelimitedEncoder) Encode(ctx context.Context, columns []string, chunk *models.Chunk, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	rows := 0

	it := chunk.Iter()
	for {
		frame, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, err
		}

		payload, ok := e.decodePayload(frame)
		if !ok {
			continue
		}

		row, ok := e.buildRow(columns, payload)
		if !ok {
			e.logger.Warn().
				Str("tag", frame.Tag).
				Msg("Record resolves every column to null, skipping")
			continue
		}

		if _, err := bw.WriteString(row); err != nil {
			return rows, err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return rows, err
		}
		rows++
	}

	if err := bw.Flush(); err != nil {
		return rows, err
	}
	return rows, nil
}

// decodePayload extracts and parses the configured payload field.
// Fails soft: any shape problem logs a warning and skips the record.
func (e *DelimitedEncoder) decodePayload(frame *models.Frame) (map[string]interface{}, bool) {
	raw, ok := frame.Record.String(e.recordLogField)
	if !ok {
		e.logger.Warn().
			Str("tag", frame.Tag).
			Str("field", e.recordLogField).
			Msg("Record has no string payload field, skipping")
		return nil, false
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		e.logger.Warn().
			Err(err).
			Str("tag", frame.Tag).
			Str("payload", snippet(raw)).
			Msg("Failed to parse record payload, skipping")
		return nil, false
	}
	return payload, true
}

// buildRow renders one delimited row. It returns ok=false when every
// column resolved to null: all-null rows are never emitted.
func (e *DelimitedEncoder) buildRow(columns []string, payload map[string]interface{}) (string, bool) {
	fields := make([]string, 0, len(columns))
	anyValue := false

	for _, col := range columns {
		v, ok := payload[col]
		if !ok || v == nil {
			// Null marker: empty, unquoted
			fields = append(fields, "")
			continue
		}
		anyValue = true
		fields = append(fields, quote(stringify(v)))
	}

	if !anyValue {
		return "", false
	}
	return strings.Join(fields, e.delimiter), true
}

// stringify renders a payload value for a delimited field. Strings pass
// through; composites and scalars take their canonical JSON text form.
func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// quote wraps a field value in double quotes, doubling embedded quotes.
// The delimiter needs no escaping inside a quoted field; REMOVEQUOTES
// strips the surrounding quotes at load time.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func snippet(s string) string {
	if len(s) > snippetLimit {
		return s[:snippetLimit] + "..."
	}
	return s
}
