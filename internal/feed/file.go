// Package feed provides raw-job sources for intake: a JSON file feed
// for manually curated postings and a Greenhouse boards feed for
// companies hosted there.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// Ensure JSONFile implements model.Feed.
var _ model.Feed = (*JSONFile)(nil)

// JSONFile reads a JSON array of raw jobs from disk. Items without a
// source get the feed's name.
type JSONFile struct {
	name string
	path string
}

// NewJSONFile creates a file feed for the given path.
func NewJSONFile(name, path string) *JSONFile {
	if name == "" {
		name = "file"
	}
	return &JSONFile{name: name, path: path}
}

func (f *JSONFile) Name() string { return f.name }

// Fetch reads and decodes the file.
func (f *JSONFile) Fetch(ctx context.Context) ([]model.RawJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("file feed %s: %w", f.name, err)
	}

	var raws []model.RawJob
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("file feed %s: decoding %s: %w", f.name, f.path, err)
	}

	for i := range raws {
		if raws[i].Source == "" {
			raws[i].Source = f.name
		}
	}
	return raws, nil
}
