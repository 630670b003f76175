package encode

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseFileType(t *testing.T) {
	tests := []struct {
		input   string
		want    FileType
		wantErr bool
	}{
		{"json", FileTypeJSON, false},
		{"tsv", FileTypeTSV, false},
		{"csv", FileTypeCSV, false},
		{"msgpack", FileTypeMsgpack, false},
		{"parquet", "", true},
		{"", "", true},
		{"JSON", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFileType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDelimiter(t *testing.T) {
	require.Equal(t, "\t", FileTypeJSON.ResolveDelimiter(""))
	require.Equal(t, "\t", FileTypeTSV.ResolveDelimiter(""))
	require.Equal(t, ",", FileTypeCSV.ResolveDelimiter(""))
	// Explicit override wins over the file-type default
	require.Equal(t, "|", FileTypeCSV.ResolveDelimiter("|"))
}

func TestNew(t *testing.T) {
	t.Run("delimited for text types", func(t *testing.T) {
		for _, ft := range []FileType{FileTypeJSON, FileTypeTSV, FileTypeCSV} {
			enc, err := New(ft, ft.DefaultDelimiter(), "log", zerolog.Nop())
			require.NoError(t, err)
			require.True(t, enc.NeedsSchema())
		}
	})

	t.Run("passthrough for msgpack", func(t *testing.T) {
		enc, err := New(FileTypeMsgpack, "", "log", zerolog.Nop())
		require.NoError(t, err)
		require.False(t, enc.NeedsSchema())
	})
}
