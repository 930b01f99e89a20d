package storage

import (
	"errors"
	"fmt"
	"math"

	"github.com/beaubromley/vimeo-sermon-search/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrIngestionFailed = errors.New("ingestion failed")
)

// IngestionError reports a segment write that was rolled back for one video.
type IngestionError struct {
	VideoID model.VideoID
	Err     error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed for video %s: %v", e.VideoID, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

func (e *IngestionError) Is(target error) bool {
	return target == ErrIngestionFailed
}

func ingestionFailed(id model.VideoID, err error) error {
	if err == nil {
		return nil
	}
	var ie *IngestionError
	if errors.As(err, &ie) {
		return err
	}
	return &IngestionError{VideoID: id, Err: err}
}

func validateSegment(i int, s model.Segment) error {
	if math.IsNaN(s.Start) || math.IsNaN(s.End) || s.Start < 0 || s.End < s.Start {
		return fmt.Errorf("segment %d: invalid time range %v --> %v", i, s.Start, s.End)
	}
	return nil
}
