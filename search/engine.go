// Package search turns index matches and title matches into results.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beaubromley/vimeo-sermon-search/metrics"
	"github.com/beaubromley/vimeo-sermon-search/model"
	"github.com/beaubromley/vimeo-sermon-search/storage"
)

const MinQueryLength = 2

var ErrQueryRejected = errors.New("query rejected")

// Groups selects which kinds of matches a search returns.
type Groups int

const (
	GroupTranscripts Groups = 1 << iota
	GroupTitles
	GroupAll = GroupTranscripts | GroupTitles
)

// Results keeps title and transcript matches apart.
type Results struct {
	Titles      []model.Result `json:"titles"`
	Transcripts []model.Result `json:"transcripts"`
}

// All returns title matches followed by transcript matches.
func (r Results) All() []model.Result {
	all := make([]model.Result, 0, len(r.Titles)+len(r.Transcripts))
	all = append(all, r.Titles...)
	return append(all, r.Transcripts...)
}

func (r Results) Len() int {
	return len(r.Titles) + len(r.Transcripts)
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

type Engine struct {
	index   storage.Index
	metrics *metrics.Metrics
}

func New(index storage.Index, opts ...Option) *Engine {
	e := &Engine{index: index}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns the transcript matches for query, and the title matches too
// when includeTitles is set.
func (e *Engine) Search(ctx context.Context, query string, includeTitles bool) (Results, error) {
	groups := GroupTranscripts
	if includeTitles {
		groups = GroupAll
	}
	return e.SearchGroups(ctx, query, groups)
}

func (e *Engine) SearchGroups(ctx context.Context, query string, groups Groups) (Results, error) {
	start := time.Now()
	res, err := e.search(ctx, query, groups)
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.ObserveQuery(status, len(res.Titles), len(res.Transcripts), time.Since(start))

	return res, err
}

func (e *Engine) search(ctx context.Context, query string, groups Groups) (Results, error) {
	res := Results{Titles: []model.Result{}, Transcripts: []model.Result{}}
	if query == "" {
		return res, nil
	}

	if groups&GroupTranscripts != 0 {
		matches, err := e.index.QueryTranscripts(ctx, query)
		if err != nil {
			return Results{}, fmt.Errorf("search transcripts: %w", err)
		}
		for _, m := range matches {
			res.Transcripts = append(res.Transcripts, model.Result{
				Title:     m.Title,
				VideoID:   m.VideoID,
				VideoURL:  m.VideoURL,
				Start:     m.Start,
				Timestamp: model.FormatTimestamp(m.Start),
				URL:       e.index.DeepLinkFor(m.VideoID, m.Start),
				MatchText: m.Text,
				Kind:      model.MatchTranscript,
			})
		}
	}

	if groups&GroupTitles != 0 {
		videos, err := e.index.FindTitles(ctx, query)
		if err != nil {
			return Results{}, fmt.Errorf("search titles: %w", err)
		}
		for _, v := range videos {
			res.Titles = append(res.Titles, model.Result{
				Title:     v.Title,
				VideoID:   v.ID,
				VideoURL:  v.URL,
				Start:     0,
				Timestamp: model.FormatTimestamp(0),
				URL:       e.index.DeepLinkFor(v.ID, 0),
				MatchText: fmt.Sprintf("Title contains: '%s'", query),
				Kind:      model.MatchTitle,
			})
		}
	}

	return res, nil
}

// ValidateQuery trims q and rejects queries too short to search for. It
// belongs to callers; the engine accepts any query.
func ValidateQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < MinQueryLength {
		return "", fmt.Errorf("%w: %q needs at least %d characters", ErrQueryRejected, q, MinQueryLength)
	}
	return q, nil
}

// Page returns at most limit results starting at offset. A limit of zero or
// less means no limit.
func Page(results []model.Result, offset, limit int) []model.Result {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []model.Result{}
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
