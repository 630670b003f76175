// Package schema fetches the target table's column order from the
// warehouse. The order drives delimited encoding, so it is read fresh on
// every structured-text flush and never cached: an ALTER TABLE between
// flushes must be reflected in the next artifact.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const columnsQuery = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// Fetcher queries the warehouse metadata for the target table's columns.
type Fetcher struct {
	connString string
	schema     string
	table      string
	logger     zerolog.Logger
}

// NewFetcher creates a fetcher for a possibly schema-qualified table name;
// unqualified names resolve against "public".
func NewFetcher(connString, table string, logger zerolog.Logger) *Fetcher {
	schemaName, tableName := splitTable(table)
	return &Fetcher{
		connString: connString,
		schema:     schemaName,
		table:      tableName,
		logger:     logger.With().Str("component", "schema-fetcher").Logger(),
	}
}

// Columns returns the table's column names in ordinal order. A missing or
// column-less table yields an empty slice and nil error: that is a valid
// "no columns" result the caller treats as no valid data. Connectivity and
// auth failures return an error and are not retried here.
func (f *Fetcher) Columns(ctx context.Context) ([]string, error) {
	conn, err := pgx.Connect(ctx, f.connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse for schema of %s.%s: %w", f.schema, f.table, err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, columnsQuery, f.schema, f.table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s.%s: %w", f.schema, f.table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s.%s: %w", f.schema, f.table, err)
	}

	f.logger.Debug().
		Str("table", f.schema+"."+f.table).
		Int("columns", len(columns)).
		Msg("Fetched table schema")

	return columns, nil
}

// splitTable splits "schema.table" into its parts, defaulting the schema
// to public.
func splitTable(table string) (string, string) {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "public", table
}
