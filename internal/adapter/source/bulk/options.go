// Package bulk streams listing rows from published CSV/JSON exports.
package bulk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/V4T54L/agenda-ingest/internal/normalize"
)

const defaultChunkSize = 100

// Options bounds a bulk read.
type Options struct {
	ChunkSize  int // rows per Next call
	MaxRecords int // 0 means no limit
}

func (o Options) chunkSize() int {
	if o.ChunkSize <= 0 {
		return defaultChunkSize
	}
	return o.ChunkSize
}

// columnsFile is the YAML shape of extra column aliases:
//
//	columns:
//	  title: [intitule, libelle]
//	  city: [nom_commune]
type columnsFile struct {
	Columns map[string][]string `yaml:"columns"`
}

// LoadColumns reads extra column aliases from a YAML file.
func LoadColumns(path string) (map[normalize.Field][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read columns file: %w", err)
	}
	var cf columnsFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("parse columns file: %w", err)
	}
	out := make(map[normalize.Field][]string, len(cf.Columns))
	for field, aliases := range cf.Columns {
		f := normalize.Field(field)
		if _, ok := normalize.DefaultColumns[f]; !ok {
			return nil, fmt.Errorf("columns file: unknown field %q", field)
		}
		out[f] = aliases
	}
	return out, nil
}
