package storage

import (
	"context"

	"github.com/beaubromley/vimeo-sermon-search/model"
)

// Index is the read side used by the query engine.
type Index interface {
	QueryTranscripts(ctx context.Context, query string) ([]model.TranscriptMatch, error)
	FindTitles(ctx context.Context, query string) ([]model.Video, error)
	DeepLinkFor(id model.VideoID, start float64) string
}

type VideoRepository interface {
	UpsertVideo(ctx context.Context, video model.Video) error
	ListProcessedVideoIDs(ctx context.Context) (map[model.VideoID]struct{}, error)
	Videos(ctx context.Context) ([]model.Video, error)
	Video(ctx context.Context, id model.VideoID) (model.Video, error)
}

type SegmentRepository interface {
	AddSegments(ctx context.Context, id model.VideoID, segments []model.Segment) error
	SaveTranscript(ctx context.Context, video model.Video, segments []model.Segment, replace bool) error
	Segments(ctx context.Context, id model.VideoID) ([]model.Segment, error)
	RebuildIndex(ctx context.Context) error
}

type Store interface {
	Index
	VideoRepository
	SegmentRepository
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

type Stats struct {
	Videos       int `json:"videos"`
	Segments     int `json:"segments"`
	IndexEntries int `json:"index_entries"`
}
