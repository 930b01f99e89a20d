// Package ingest drives caption files through the parser into the store, one
// transaction per video.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beaubromley/vimeo-sermon-search/caption"
	"github.com/beaubromley/vimeo-sermon-search/metrics"
	"github.com/beaubromley/vimeo-sermon-search/model"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// Store is the part of the segment store ingestion writes to.
type Store interface {
	ListProcessedVideoIDs(ctx context.Context) (map[model.VideoID]struct{}, error)
	SaveTranscript(ctx context.Context, video model.Video, segments []model.Segment, replace bool) error
}

type Option func(*Orchestrator)

// WithForce re-ingests videos that are already stored, replacing their
// segments.
func WithForce(force bool) Option {
	return func(o *Orchestrator) { o.force = force }
}

func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithReadTimeout bounds opening and parsing a single caption resource.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.readTimeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

type Orchestrator struct {
	store       Store
	locator     Locator
	force       bool
	workers     int
	readTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(store Store, locator Locator, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		locator: locator,
		workers: 1,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run ingests the videos and reports per video what happened. A failing video
// never stops the others; the only error returned is a failed lookup of the
// already processed videos.
func (o *Orchestrator) Run(ctx context.Context, videos []model.Video) (Summary, error) {
	runID := uuid.New()
	logger := o.logger.With(slog.String("run", runID.String()))

	processed, err := o.store.ListProcessedVideoIDs(ctx)
	if err != nil {
		return Summary{RunID: runID}, fmt.Errorf("list processed videos: %w", err)
	}
	logger.Info("ingestion started", slog.Int("videos", len(videos)), slog.Int("processed", len(processed)), slog.Bool("force", o.force))

	results := make([]Result, len(videos))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, video := range videos {
		i, video := i, video
		g.Go(func() error {
			start := time.Now()
			results[i] = o.process(ctx, logger, video, processed)
			o.metrics.ObserveVideo(string(results[i].Outcome), results[i].Segments, time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	summary := newSummary(runID, results)
	logger.Info("ingestion finished",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("unchanged", summary.Unchanged),
	)

	return summary, nil
}

func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, video model.Video, processed map[model.VideoID]struct{}) Result {
	res := Result{VideoID: video.ID, State: model.StateUnseen}
	logger = logger.With(slog.String("video", string(video.ID)))

	if _, ok := processed[video.ID]; ok && !o.force {
		res.State = model.StateIndexed
		res.Outcome = OutcomeUnchanged
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Outcome = OutcomeSkipped
		res.Err = err
		return res
	}

	segments, err := o.parse(ctx, logger, video.ID)
	if err != nil {
		if !errors.Is(err, caption.ErrResourceUnavailable) {
			err = fmt.Errorf("%w: %w", caption.ErrResourceUnavailable, err)
		}
		logger.Info("no captions, skipping video", slog.String("error", err.Error()))
		res.Outcome = OutcomeSkipped
		res.Err = err
		return res
	}
	res.State = model.StateParsed
	res.Segments = len(segments)

	if err := o.store.SaveTranscript(ctx, video, segments, o.force); err != nil {
		logger.Error("failed to store transcript", slog.String("error", err.Error()))
		res.State = model.StateFailed
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	res.State = model.StateIndexed
	res.Outcome = OutcomeIndexed
	logger.Info("video indexed", slog.Int("segments", len(segments)))

	return res
}

func (o *Orchestrator) parse(ctx context.Context, logger *slog.Logger, id model.VideoID) ([]model.Segment, error) {
	if o.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.readTimeout)
		defer cancel()
	}

	rc, err := o.locator.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := caption.NewReader(rc,
		caption.WithContext(ctx),
		caption.OnMalformed(func(line int, marker string) {
			logger.Warn("malformed caption timestamp", slog.Int("line", line), slog.String("marker", marker))
		}),
	)
	segments := []model.Segment{}
	for r.Next() {
		cue := r.Cue()
		segments = append(segments, model.Segment{
			VideoID: id,
			Start:   cue.Start,
			End:     cue.End,
			Text:    cue.Text,
		})
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	return segments, nil
}
