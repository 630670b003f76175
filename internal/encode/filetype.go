package encode

import "fmt"

// FileType selects the artifact encoding for a sink instance.
type FileType string

const (
	FileTypeJSON    FileType = "json"    // delimited rows from a JSON payload field, tab by default
	FileTypeTSV     FileType = "tsv"     // delimited rows, tab
	FileTypeCSV     FileType = "csv"     // delimited rows, comma
	FileTypeMsgpack FileType = "msgpack" // raw chunk body, no row transformation
)

// ParseFileType validates a configured file type. Anything unknown is a
// configuration error: the process must not start with it.
func ParseFileType(s string) (FileType, error) {
	switch FileType(s) {
	case FileTypeJSON, FileTypeTSV, FileTypeCSV, FileTypeMsgpack:
		return FileType(s), nil
	default:
		return "", fmt.Errorf("invalid file type %q (must be json, tsv, csv or msgpack)", s)
	}
}

// DefaultDelimiter returns the delimiter a file type implies when no
// explicit override is configured.
func (ft FileType) DefaultDelimiter() string {
	switch ft {
	case FileTypeCSV:
		return ","
	default:
		return "\t"
	}
}

// ResolveDelimiter applies the explicit override, falling back to the
// file-type default.
func (ft FileType) ResolveDelimiter(override string) string {
	if override != "" {
		return override
	}
	return ft.DefaultDelimiter()
}
