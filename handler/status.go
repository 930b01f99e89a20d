package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/beaubromley/vimeo-sermon-search/storage"
	"golang.org/x/exp/slog"
)

type StatsReader interface {
	Stats(ctx context.Context) (storage.Stats, error)
}

type StatusAPI struct {
	stats  StatsReader
	logger *slog.Logger
}

func NewStatusAPI(stats StatsReader, logger *slog.Logger) *StatusAPI {
	return &StatusAPI{
		stats:  stats,
		logger: logger,
	}
}

func (s *StatusAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, _ := ShiftPath(r.URL.Path)
	if r.Method != http.MethodGet || sub != "" {
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the status api", r.Method, sub))
		return
	}

	st, err := s.stats.Stats(r.Context())
	if err != nil {
		s.logger.Error("could not read stats", slog.String("error", err.Error()))
		Error(w, http.StatusInternalServerError, "could not read stats", err)
		return
	}

	JSON(w, http.StatusOK, st)
}
