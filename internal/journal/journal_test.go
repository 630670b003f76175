package journal

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	j := openTestJournal(t)

	j.Record(Entry{
		FlushID: "flush-1",
		Table:   "public.access_logs",
		URI:     "s3://bucket/logs/20240101-0000_00.gz",
		Rows:    120,
		Bytes:   4096,
		Outcome: "loaded",
	})
	j.Record(Entry{
		FlushID: "flush-2",
		Table:   "public.access_logs",
		URI:     "s3://bucket/logs/20240101-0001_00.gz",
		Rows:    80,
		Bytes:   2048,
		Outcome: "failed",
		Error:   "load into public.access_logs failed transiently: timeout",
	})

	entries, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[string]Entry{}
	for _, e := range entries {
		byID[e.FlushID] = e
	}
	require.Equal(t, "loaded", byID["flush-1"].Outcome)
	require.Equal(t, 120, byID["flush-1"].Rows)
	require.Equal(t, "failed", byID["flush-2"].Outcome)
	require.Contains(t, byID["flush-2"].Error, "transiently")
}

func TestJournal_RecentLimit(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 5; i++ {
		j.Record(Entry{
			FlushID: string(rune('a' + i)),
			Table:   "t",
			URI:     "s3://b/k.gz",
			Outcome: "loaded",
		})
	}

	entries, err := j.Recent(3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestJournal_DuplicateFlushIDDoesNotError(t *testing.T) {
	j := openTestJournal(t)

	e := Entry{FlushID: "same", Table: "t", URI: "u", Outcome: "loaded"}
	j.Record(e)
	// Second insert violates the primary key; Record must swallow it
	j.Record(e)

	entries, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
