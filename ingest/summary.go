package ingest

import (
	"github.com/beaubromley/vimeo-sermon-search/model"
	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeIndexed   Outcome = "indexed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result is what happened to one video in a run.
type Result struct {
	VideoID  model.VideoID
	State    model.IngestState
	Outcome  Outcome
	Segments int
	Err      error
}

type Summary struct {
	RunID     uuid.UUID
	Succeeded int
	Failed    int
	Skipped   int
	Unchanged int
	Results   []Result
}

func newSummary(runID uuid.UUID, results []Result) Summary {
	s := Summary{RunID: runID, Results: results}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeIndexed:
			s.Succeeded++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeUnchanged:
			s.Unchanged++
		}
	}
	return s
}

// Failures returns the results of videos that ended in the failed state.
func (s Summary) Failures() []Result {
	failed := []Result{}
	for _, r := range s.Results {
		if r.Outcome == OutcomeFailed {
			failed = append(failed, r)
		}
	}
	return failed
}
