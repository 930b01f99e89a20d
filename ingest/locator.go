package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/beaubromley/vimeo-sermon-search/caption"
	"github.com/beaubromley/vimeo-sermon-search/model"
)

const DefaultLanguage = "en-x-autogen"

// Locator opens the caption resource of a video.
type Locator interface {
	Open(ctx context.Context, id model.VideoID) (io.ReadCloser, error)
}

// DirLocator finds caption files named {id}_{language}.vtt in a directory.
type DirLocator struct {
	Dir      string
	Language string
}

func NewDirLocator(dir, language string) *DirLocator {
	if language == "" {
		language = DefaultLanguage
	}
	return &DirLocator{Dir: dir, Language: language}
}

func (dl *DirLocator) Path(id model.VideoID) string {
	lang := dl.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	return filepath.Join(dl.Dir, fmt.Sprintf("%s_%s.vtt", id, lang))
}

func (dl *DirLocator) Open(ctx context.Context, id model.VideoID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", caption.ErrResourceUnavailable, err)
	}
	f, err := os.Open(dl.Path(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", caption.ErrResourceUnavailable, err)
	}
	return f, nil
}
