package model

import (
	"time"
)

type IngestState string

const (
	StateUnseen  IngestState = "unseen"
	StateParsed  IngestState = "parsed"
	StateStored  IngestState = "stored"
	StateIndexed IngestState = "indexed"
	StateFailed  IngestState = "failed"
)

type VideoID string

type Video struct {
	ID          VideoID
	Title       string
	Duration    int
	URL         string
	PublishedAt time.Time
}

// Segment is one caption cue persisted for a video.
type Segment struct {
	ID      int64
	VideoID VideoID
	Start   float64
	End     float64
	Text    string
	URL     string
}

// TranscriptMatch is a search index hit joined with its owning video.
type TranscriptMatch struct {
	Segment
	Title    string
	VideoURL string
}
