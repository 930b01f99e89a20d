package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/beaubromley/vimeo-sermon-search/model"
	"github.com/beaubromley/vimeo-sermon-search/search"
	"golang.org/x/exp/slog"
)

type Searcher interface {
	SearchGroups(ctx context.Context, query string, groups search.Groups) (search.Results, error)
}

type SearchAPI struct {
	searcher      Searcher
	includeTitles bool
	maxResults    int
	logger        *slog.Logger
}

// NewSearchAPI serves searches. includeTitles is the default for the titles
// parameter and maxResults caps the page size of each group; zero means no
// cap.
func NewSearchAPI(searcher Searcher, includeTitles bool, maxResults int, logger *slog.Logger) *SearchAPI {
	return &SearchAPI{
		searcher:      searcher,
		includeTitles: includeTitles,
		maxResults:    maxResults,
		logger:        logger,
	}
}

func (s *SearchAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, _ := ShiftPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && sub == "":
		s.Search(w, r)
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the search api", r.Method, sub))
	}
}

type searchParams struct {
	query  string
	groups search.Groups
	offset int
	limit  int
}

func (s *SearchAPI) params(r *http.Request) (searchParams, error) {
	values := r.URL.Query()
	q, err := search.ValidateQuery(values.Get("q"))
	if err != nil {
		return searchParams{}, err
	}
	p := searchParams{query: q, limit: s.maxResults}

	titles, err := boolParam(values.Get("titles"), s.includeTitles)
	if err != nil {
		return searchParams{}, fmt.Errorf("titles: %w", err)
	}
	transcripts, err := boolParam(values.Get("transcripts"), true)
	if err != nil {
		return searchParams{}, fmt.Errorf("transcripts: %w", err)
	}
	if titles {
		p.groups |= search.GroupTitles
	}
	if transcripts {
		p.groups |= search.GroupTranscripts
	}

	if p.offset, err = intParam(values.Get("offset"), 0); err != nil {
		return searchParams{}, fmt.Errorf("offset: %w", err)
	}
	limit, err := intParam(values.Get("limit"), 0)
	if err != nil {
		return searchParams{}, fmt.Errorf("limit: %w", err)
	}
	if limit > 0 && (p.limit <= 0 || limit < p.limit) {
		p.limit = limit
	}

	return p, nil
}

func (s *SearchAPI) Search(w http.ResponseWriter, r *http.Request) {
	p, err := s.params(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid search", err)
		return
	}

	res, err := s.searcher.SearchGroups(r.Context(), p.query, p.groups)
	if err != nil {
		s.logger.Error("search failed", slog.String("query", p.query), slog.String("error", err.Error()))
		Error(w, http.StatusInternalServerError, "search failed", err)
		return
	}

	resp := struct {
		Query           string         `json:"query"`
		TitleCount      int            `json:"title_count"`
		TranscriptCount int            `json:"transcript_count"`
		Titles          []model.Result `json:"titles"`
		Transcripts     []model.Result `json:"transcripts"`
	}{
		Query:           p.query,
		TitleCount:      len(res.Titles),
		TranscriptCount: len(res.Transcripts),
		Titles:          search.Page(res.Titles, p.offset, p.limit),
		Transcripts:     search.Page(res.Transcripts, p.offset, p.limit),
	}

	JSON(w, http.StatusOK, resp)
}

var errNegative = errors.New("must not be negative")

func boolParam(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errNegative
	}
	return n, nil
}
