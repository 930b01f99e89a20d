package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beaubromley/vimeo-sermon-search/model"
	"golang.org/x/exp/slog"
)

var ErrInvalidEntry = errors.New("invalid catalog entry")

// Entry is one video record as the catalog publishes it.
type Entry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Date        string `json:"date"`
	Duration    int    `json:"duration"`
	Description string `json:"description"`
	Privacy     string `json:"privacy"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Video converts the entry. Only a missing id is rejected; the other fields
// fall back to their zero values.
func (e Entry) Video() (model.Video, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return model.Video{}, fmt.Errorf("%w: missing id", ErrInvalidEntry)
	}

	v := model.Video{
		ID:       model.VideoID(id),
		Title:    e.Title,
		URL:      e.URL,
		Duration: e.Duration,
	}
	if v.Duration < 0 {
		v.Duration = 0
	}
	v.PublishedAt = parseDate(e.Date)

	return v, nil
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Videos converts a batch of entries, dropping the invalid ones. Later
// entries with an id already seen replace the earlier one in place.
func Videos(entries []Entry, logger *slog.Logger) []model.Video {
	videos := make([]model.Video, 0, len(entries))
	pos := map[model.VideoID]int{}
	for i, e := range entries {
		v, err := e.Video()
		if err != nil {
			logger.Warn("skipping catalog entry", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		if p, ok := pos[v.ID]; ok {
			videos[p] = v
			continue
		}
		pos[v.ID] = len(videos)
		videos = append(videos, v)
	}

	return videos
}
