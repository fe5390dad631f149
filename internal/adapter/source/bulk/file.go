package bulk

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/V4T54L/agenda-ingest/internal/adapter/source"
)

// OpenFile opens a local export. ".json" files stream as JSON, anything else as CSV;
// a file whose first non-space byte is '[' or '{' is treated as JSON too.
func OpenFile(path string, opts Options) (source.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bulk file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") || looksLikeJSON(f) {
		return NewJSONSource(f, opts), nil
	}
	s, err := NewCSVSource(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func looksLikeJSON(f *os.File) bool {
	defer f.Seek(0, 0)
	br := bufio.NewReader(f)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return false
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case 0xEF, 0xBB, 0xBF:
			continue
		case '[', '{':
			return true
		default:
			return false
		}
	}
}
