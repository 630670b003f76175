package encode

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/streamhouse/redshift-sink/pkg/models"
)

// makeChunk frames records whose payload field holds the given JSON
// strings (or lacks the field for empty strings).
func makeChunk(t *testing.T, payloads ...string) *models.Chunk {
	t.Helper()
	var body bytes.Buffer
	for _, p := range payloads {
		record := models.Record{}
		if p != "" {
			record["log"] = p
		}
		frame, err := models.EncodeFrame("test.log", time.Unix(1700000000, 0), record)
		require.NoError(t, err)
		body.Write(frame)
	}
	return models.NewChunk(body.Bytes(), len(payloads))
}

func encodeChunk(t *testing.T, enc *DelimitedEncoder, columns []string, chunk *models.Chunk) (int, string) {
	t.Helper()
	var out bytes.Buffer
	rows, err := enc.Encode(context.Background(), columns, chunk, &out)
	require.NoError(t, err)
	return rows, out.String()
}

func TestDelimitedEncoder_RoundTrip(t *testing.T) {
	enc := NewDelimitedEncoder(",", "log", zerolog.Nop())

	chunk := makeChunk(t, `{"a":"1","b":"x,y","c":null}`)
	rows, out := encodeChunk(t, enc, []string{"a", "b", "c"}, chunk)

	require.Equal(t, 1, rows)
	require.Equal(t, "\"1\",\"x,y\",\n", out)
}

func TestDelimitedEncoder_TabDelimiter(t *testing.T) {
	enc := NewDelimitedEncoder("\t", "log", zerolog.Nop())

	chunk := makeChunk(t, `{"a":"left","b":"right"}`)
	rows, out := encodeChunk(t, enc, []string{"a", "b"}, chunk)

	require.Equal(t, 1, rows)
	require.Equal(t, "\"left\"\t\"right\"\n", out)
}

func TestDelimitedEncoder_EscapesEmbeddedQuotes(t *testing.T) {
	enc := NewDelimitedEncoder(",", "log", zerolog.Nop())

	chunk := makeChunk(t, `{"a":"say \"hi\""}`)
	_, out := encodeChunk(t, enc, []string{"a"}, chunk)

	require.Equal(t, "\"say \"\"hi\"\"\"\n", out)
}

func TestDelimitedEncoder_CompositeValuesAsJSON(t *testing.T) {
	enc := NewDelimitedEncoder("\t", "log", zerolog.Nop())

	chunk := makeChunk(t, `{"a":{"nested":true},"b":[1,2],"c":42}`)
	_, out := encodeChunk(t, enc, []string{"a", "b", "c"}, chunk)

	parts := strings.Split(strings.TrimSuffix(out, "\n"), "\t")
	require.Len(t, parts, 3)

	// Composite fields carry their canonical JSON text, with embedded
	// quotes doubled by the field quoting
	require.Equal(t, `"{""nested"":true}"`, parts[0])
	require.Equal(t, `"[1,2]"`, parts[1])
	require.Equal(t, `"42"`, parts[2])
}

func TestDelimitedEncoder_SkipsAllNullRecords(t *testing.T) {
	enc := NewDelimitedEncoder(",", "log", zerolog.Nop())

	chunk := makeChunk(t,
		`{"x":"unrelated","a":null}`,
		`{"a":"kept"}`,
	)
	rows, out := encodeChunk(t, enc, []string{"a", "b"}, chunk)

	require.Equal(t, 1, rows)
	require.Equal(t, "\"kept\",\n", out)
}

func TestDelimitedEncoder_MalformedPayloadSkipsOnlyThatRecord(t *testing.T) {
	enc := NewDelimitedEncoder(",", "log", zerolog.Nop())

	chunk := makeChunk(t,
		`{"a":"first"}`,
		`{not json at all`,
		`{"a":"third"}`,
	)
	rows, out := encodeChunk(t, enc, []string{"a"}, chunk)

	require.Equal(t, 2, rows)
	require.Equal(t, "\"first\"\n\"third\"\n", out)
}

func TestDelimitedEncoder_MissingPayloadFieldSkips(t *testing.T) {
	enc := NewDelimitedEncoder(",", "log", zerolog.Nop())

	chunk := makeChunk(t, "", `{"a":"only"}`)
	rows, out := encodeChunk(t, enc, []string{"a"}, chunk)

	require.Equal(t, 1, rows)
	require.Equal(t, "\"only\"\n", out)
}

func TestDelimitedEncoder_EmptyChunkEmitsNothing(t *testing.T) {
	enc := NewDelimitedEncoder(",", "log", zerolog.Nop())

	chunk := models.NewChunk(nil, 0)
	rows, out := encodeChunk(t, enc, []string{"a"}, chunk)

	require.Equal(t, 0, rows)
	require.Empty(t, out)
}

func TestCountingWriter(t *testing.T) {
	var sink bytes.Buffer
	cw := NewCountingWriter(&sink)

	require.EqualValues(t, 0, cw.Count())

	n, err := cw.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.EqualValues(t, 5, cw.Count())
}
