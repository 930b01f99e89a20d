package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Source supplies the catalog of archived videos.
type Source interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// FileSource reads a JSON array of entries, as the scraper writes it to
// video_data.json.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (fs *FileSource) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(fs.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	entries := []Entry{}
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", fs.Path, err)
	}

	return entries, nil
}
