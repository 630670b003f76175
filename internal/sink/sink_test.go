package sink

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/streamhouse/redshift-sink/internal/encode"
	"github.com/streamhouse/redshift-sink/internal/journal"
	"github.com/streamhouse/redshift-sink/internal/loader"
	"github.com/streamhouse/redshift-sink/pkg/models"
)

type fakeFetcher struct {
	columns []string
	err     error
	calls   int
}

func (f *fakeFetcher) Columns(ctx context.Context) ([]string, error) {
	f.calls++
	return f.columns, f.err
}

type fakeKeys struct {
	key   string
	calls int
}

func (f *fakeKeys) Next(ctx context.Context, now time.Time) (string, error) {
	f.calls++
	return f.key, nil
}

// fakeStore records uploads in memory.
type fakeStore struct {
	uploads  map[string][]byte
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: make(map[string][]byte)}
}

func (f *fakeStore) Write(ctx context.Context, key string, data []byte) error {
	return f.WriteReader(ctx, key, bytes.NewReader(data), int64(len(data)))
}

func (f *fakeStore) WriteReader(ctx context.Context, key string, r io.Reader, size int64) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeStore) Read(ctx context.Context, key string) ([]byte, error)      { return f.uploads[key], nil }
func (f *fakeStore) List(ctx context.Context, prefix string) ([]string, error) { return nil, nil }
func (f *fakeStore) Delete(ctx context.Context, key string) error              { return nil }
func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.uploads[key]
	return ok, nil
}
func (f *fakeStore) URI(key string) string { return "s3://test-bucket/" + key }
func (f *fakeStore) Close() error          { return nil }
func (f *fakeStore) Type() string          { return "fake" }

type fakeLoader struct {
	err  error
	uris []string
}

func (f *fakeLoader) Load(ctx context.Context, uri string) error {
	f.uris = append(f.uris, uri)
	return f.err
}

type memJournal struct {
	entries []journal.Entry
}

func (m *memJournal) Record(e journal.Entry) { m.entries = append(m.entries, e) }

type fixture struct {
	sink    *Sink
	fetcher *fakeFetcher
	keys    *fakeKeys
	store   *fakeStore
	loader  *fakeLoader
	journal *memJournal
}

func newFixture(t *testing.T, enc encode.Encoder) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: &fakeFetcher{columns: []string{"a", "b"}},
		keys:    &fakeKeys{key: "logs/20240101-0000_00.gz"},
		store:   newFakeStore(),
		loader:  &fakeLoader{},
		journal: &memJournal{},
	}
	f.sink = New("public.access_logs", enc, f.fetcher, f.keys, f.store, f.loader, f.journal, zerolog.Nop())
	return f
}

func delimitedChunk(t *testing.T, payloads ...string) *models.Chunk {
	t.Helper()
	var body bytes.Buffer
	n := 0
	for _, p := range payloads {
		frame, err := models.EncodeFrame("app.log", time.Unix(1700000000, 0), models.Record{"log": p})
		require.NoError(t, err)
		body.Write(frame)
		n++
	}
	return models.NewChunk(body.Bytes(), n)
}

func TestWrite_EmptyChunkSkipsWithoutIO(t *testing.T) {
	f := newFixture(t, encode.NewDelimitedEncoder(",", "log", zerolog.Nop()))

	skipped, err := f.sink.Write(context.Background(), models.NewChunk(nil, 0))
	require.NoError(t, err)
	require.True(t, skipped)

	require.Zero(t, f.fetcher.calls)
	require.Zero(t, f.keys.calls)
	require.Empty(t, f.store.uploads)
	require.Empty(t, f.loader.uris)
}

func TestWrite_EmptySchemaSkipsBeforeDecoding(t *testing.T) {
	f := newFixture(t, encode.NewDelimitedEncoder(",", "log", zerolog.Nop()))
	f.fetcher.columns = nil

	skipped, err := f.sink.Write(context.Background(), delimitedChunk(t, `{"a":"1"}`))
	require.NoError(t, err)
	require.True(t, skipped)

	require.Equal(t, 1, f.fetcher.calls)
	require.Zero(t, f.keys.calls)
	require.Empty(t, f.store.uploads)
	require.Empty(t, f.loader.uris)
}

func TestWrite_SchemaFetchErrorIsFatal(t *testing.T) {
	f := newFixture(t, encode.NewDelimitedEncoder(",", "log", zerolog.Nop()))
	f.fetcher.err = errors.New("connection refused")

	skipped, err := f.sink.Write(context.Background(), delimitedChunk(t, `{"a":"1"}`))
	require.Error(t, err)
	require.False(t, skipped)
	require.Contains(t, err.Error(), "schema fetch")
	require.Empty(t, f.store.uploads)
}

func TestWrite_NoEncodableRowsSkips(t *testing.T) {
	f := newFixture(t, encode.NewDelimitedEncoder(",", "log", zerolog.Nop()))

	// Every record resolves every column to null
	skipped, err := f.sink.Write(context.Background(), delimitedChunk(t, `{"z":"ignored"}`))
	require.NoError(t, err)
	require.True(t, skipped)
	require.Empty(t, f.store.uploads)
	require.Empty(t, f.loader.uris)
}

func TestWrite_HappyPath(t *testing.T) {
	f := newFixture(t, encode.NewDelimitedEncoder(",", "log", zerolog.Nop()))

	skipped, err := f.sink.Write(context.Background(), delimitedChunk(t,
		`{"a":"1","b":"2"}`,
		`{"a":"3","b":"4"}`,
	))
	require.NoError(t, err)
	require.False(t, skipped)

	// Artifact staged under the generated key, gzip-compressed
	artifact, ok := f.store.uploads["logs/20240101-0000_00.gz"]
	require.True(t, ok)

	gz, err := gzip.NewReader(bytes.NewReader(artifact))
	require.NoError(t, err)
	decoded, err := io.ReadAll(gz)
	require.NoError(t, err)
	require.Equal(t, "\"1\",\"2\"\n\"3\",\"4\"\n", string(decoded))

	// Loader referenced the staged object's URI
	require.Equal(t, []string{"s3://test-bucket/logs/20240101-0000_00.gz"}, f.loader.uris)

	// Journal has the outcome
	require.Len(t, f.journal.entries, 1)
	require.Equal(t, "loaded", f.journal.entries[0].Outcome)
	require.Equal(t, 2, f.journal.entries[0].Rows)
}

func TestWrite_UploadErrorPropagatesBeforeLoad(t *testing.T) {
	f := newFixture(t, encode.NewDelimitedEncoder(",", "log", zerolog.Nop()))
	f.store.writeErr = errors.New("access denied")

	skipped, err := f.sink.Write(context.Background(), delimitedChunk(t, `{"a":"1"}`))
	require.Error(t, err)
	require.False(t, skipped)
	require.Empty(t, f.loader.uris)

	require.Len(t, f.journal.entries, 1)
	require.Equal(t, "failed", f.journal.entries[0].Outcome)
}

func TestWrite_LoadErrorPropagatesUnmodified(t *testing.T) {
	f := newFixture(t, encode.NewDelimitedEncoder(",", "log", zerolog.Nop()))
	f.loader.err = &loader.TransientError{Table: "public.access_logs", Err: errors.New("timeout")}

	skipped, err := f.sink.Write(context.Background(), delimitedChunk(t, `{"a":"1"}`))
	require.False(t, skipped)

	var transient *loader.TransientError
	require.ErrorAs(t, err, &transient)
}

func TestWrite_PassthroughSkipsSchemaFetch(t *testing.T) {
	f := newFixture(t, encode.NewPassthroughEncoder(zerolog.Nop()))

	chunk := delimitedChunk(t, `{"a":"1"}`)
	skipped, err := f.sink.Write(context.Background(), chunk)
	require.NoError(t, err)
	require.False(t, skipped)

	require.Zero(t, f.fetcher.calls)
	require.Len(t, f.store.uploads, 1)

	// Passthrough artifact is the gzip of the raw chunk body
	artifact := f.store.uploads["logs/20240101-0000_00.gz"]
	gz, err := gzip.NewReader(bytes.NewReader(artifact))
	require.NoError(t, err)
	decoded, err := io.ReadAll(gz)
	require.NoError(t, err)
	require.Equal(t, chunk.Size(), len(decoded))
}

func TestFormat_RoundTrip(t *testing.T) {
	f := newFixture(t, encode.NewPassthroughEncoder(zerolog.Nop()))

	ts := time.Unix(1700000000, 0)
	frame, err := f.sink.Format("app.log", ts, models.Record{"log": `{"a":"1"}`})
	require.NoError(t, err)

	chunk := models.NewChunk(frame, 1)
	it := chunk.Iter()
	decoded, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, "app.log", decoded.Tag)
	require.Equal(t, ts.Unix(), decoded.Time)
	require.Equal(t, `{"a":"1"}`, decoded.Record["log"])
}
