package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/beaubromley/vimeo-sermon-search/model"
	"github.com/beaubromley/vimeo-sermon-search/storage"
	"golang.org/x/exp/slog"
)

type VideoStore interface {
	Videos(ctx context.Context) ([]model.Video, error)
	Video(ctx context.Context, id model.VideoID) (model.Video, error)
	Segments(ctx context.Context, id model.VideoID) ([]model.Segment, error)
}

type VideoAPI struct {
	store  VideoStore
	logger *slog.Logger
}

func NewVideoAPI(store VideoStore, logger *slog.Logger) *VideoAPI {
	return &VideoAPI{
		store:  store,
		logger: logger,
	}
}

func (v *VideoAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	videoID, _ := ShiftPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && videoID == "":
		v.List(w, r)
	case r.Method == http.MethodGet:
		v.Get(w, r, model.VideoID(videoID))
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the video api", r.Method, videoID))
	}
}

type respVideo struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Duration    int        `json:"duration"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

func newRespVideo(video model.Video) respVideo {
	rv := respVideo{
		ID:       string(video.ID),
		Title:    video.Title,
		Duration: video.Duration,
		URL:      video.URL,
	}
	if !video.PublishedAt.IsZero() {
		published := video.PublishedAt
		rv.PublishedAt = &published
	}
	return rv
}

type respSegment struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Timestamp string  `json:"timestamp"`
	Text      string  `json:"text"`
	URL       string  `json:"url"`
}

func (v *VideoAPI) List(w http.ResponseWriter, r *http.Request) {
	videos, err := v.store.Videos(r.Context())
	if err != nil {
		v.returnErr(r.Context(), w, http.StatusInternalServerError, "could not list videos", err)
		return
	}

	resp := make([]respVideo, 0, len(videos))
	for _, video := range videos {
		resp = append(resp, newRespVideo(video))
	}

	JSON(w, http.StatusOK, resp)
}

func (v *VideoAPI) Get(w http.ResponseWriter, r *http.Request, id model.VideoID) {
	video, err := v.store.Video(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		Error(w, http.StatusNotFound, "video not found", err)
		return
	case err != nil:
		v.returnErr(r.Context(), w, http.StatusInternalServerError, "could not get video", err, id)
		return
	}

	segments, err := v.store.Segments(r.Context(), id)
	if err != nil {
		v.returnErr(r.Context(), w, http.StatusInternalServerError, "could not list segments", err, id)
		return
	}

	resp := struct {
		respVideo
		Segments []respSegment `json:"segments"`
	}{
		respVideo: newRespVideo(video),
		Segments:  make([]respSegment, 0, len(segments)),
	}
	for _, s := range segments {
		resp.Segments = append(resp.Segments, respSegment{
			Start:     s.Start,
			End:       s.End,
			Timestamp: model.FormatTimestamp(s.Start),
			Text:      s.Text,
			URL:       s.URL,
		})
	}

	JSON(w, http.StatusOK, resp)
}

func (v *VideoAPI) returnErr(_ context.Context, w http.ResponseWriter, status int, message string, err error, details ...any) {
	v.logger.Error(message, slog.String("error", err.Error()), slog.String("details", fmt.Sprintf("%+v", details)))
	Error(w, status, message, err, details...)
}
