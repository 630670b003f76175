// Package loader issues the warehouse bulk-load command for a staged
// artifact and classifies the outcome. The classification is the contract
// the whole retry story hangs on: an error the server itself reported
// means the data is at fault and re-running the flush cannot help, while
// an error with no server response (dial failure, dropped connection,
// timeout) is worth a full retry.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// DataError is a fatal load failure: the warehouse parsed the request and
// rejected the data (malformed row, type mismatch, bad table). Retrying
// the same artifact can only fail the same way.
type DataError struct {
	Table string
	URI   string
	Err   error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("load into %s from %s failed on data: %v", e.Table, e.URI, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// Retryable reports that re-running the flush cannot fix a data error.
func (e *DataError) Retryable() bool { return false }

// TransientError is a retryable load failure: the command never got a
// verdict from the warehouse. The caller re-invokes the whole flush.
type TransientError struct {
	Table string
	URI   string
	Err   error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("load into %s from %s failed transiently: %v", e.Table, e.URI, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Retryable reports that a fresh flush attempt may succeed.
func (e *TransientError) Retryable() bool { return true }

// Credentials carries the storage credentials embedded in the COPY
// command. They appear only in the executed command text, never in logs
// above debug level, and the debug form is redacted.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Loader executes COPY against the warehouse over a fresh connection per
// call.
type Loader struct {
	connString string
	table      string
	delimiter  string
	binary     bool // passthrough artifacts: no delimiter, no REMOVEQUOTES
	creds      Credentials
	logger     zerolog.Logger
}

// New creates a loader for one target table.
func New(connString, table, delimiter string, binary bool, creds Credentials, logger zerolog.Logger) *Loader {
	return &Loader{
		connString: connString,
		table:      table,
		delimiter:  delimiter,
		binary:     binary,
		creds:      creds,
		logger:     logger.With().Str("component", "loader").Logger(),
	}
}

// Load runs the bulk-load command for the artifact at uri. The connection
// is opened for this call and closed on every exit path.
func (l *Loader) Load(ctx context.Context, uri string) error {
	cmd := l.buildCopy(uri)
	l.logger.Debug().
		Str("table", l.table).
		Str("uri", uri).
		Str("command", redact(cmd)).
		Msg("Executing bulk load")

	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return &TransientError{Table: l.table, URI: uri, Err: err}
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, cmd); err != nil {
		return l.classify(uri, err)
	}

	l.logger.Info().
		Str("table", l.table).
		Str("uri", uri).
		Msg("Bulk load committed")
	return nil
}

// classify maps an execution error to its tagged variant. A PgError in
// the chain is the server's own verdict, so the data is at fault; its
// absence means the failure happened below the protocol (connection),
// which a retry may fix.
func (l *Loader) classify(uri string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &DataError{Table: l.table, URI: uri, Err: err}
	}
	return &TransientError{Table: l.table, URI: uri, Err: err}
}

// buildCopy renders the COPY command for the staged artifact.
func (l *Loader) buildCopy(uri string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "copy %s from '%s' CREDENTIALS 'aws_access_key_id=%s;aws_secret_access_key=%s'",
		l.table, uri, l.creds.AccessKey, l.creds.SecretKey)
	if !l.binary {
		fmt.Fprintf(&b, " delimiter '%s' REMOVEQUOTES", escapeDelimiter(l.delimiter))
	}
	b.WriteString(" GZIP;")
	return b.String()
}

// escapeDelimiter renders the delimiter for the SQL literal. Tab is the
// common non-printable case.
func escapeDelimiter(d string) string {
	if d == "\t" {
		return `\t`
	}
	return strings.ReplaceAll(d, "'", "''")
}

// redact strips the secret from the command for debug logging.
func redact(cmd string) string {
	start := strings.Index(cmd, "CREDENTIALS '")
	if start < 0 {
		return cmd
	}
	start += len("CREDENTIALS '")
	end := strings.Index(cmd[start:], "'")
	if end < 0 {
		return cmd[:start] + "[redacted]"
	}
	return cmd[:start] + "[redacted]" + cmd[start+end:]
}
