package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beaubromley/vimeo-sermon-search/caption"
	"github.com/beaubromley/vimeo-sermon-search/metrics"
	"github.com/beaubromley/vimeo-sermon-search/model"
	"github.com/beaubromley/vimeo-sermon-search/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/exp/slog"
)

const graceVTT = `WEBVTT

1
00:00:01.000 --> 00:00:04.500
Faith and works go together.

2
00:00:05.000 --> 00:00:09.000
We are saved by grace.
`

const hopeVTT = `WEBVTT

00:00:02.000 --> 00:00:03.000
hope does not disappoint

bad --> 00:00:04.000
a cue with a broken start
`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeCaption(t *testing.T, dir string, id model.VideoID, body string) {
	t.Helper()
	path := NewDirLocator(dir, "").Path(id)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write caption: %v", err)
	}
}

func newStore(t *testing.T) *storage.Memory {
	t.Helper()
	s, err := storage.NewMemory(model.DefaultPlayerHost)
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// failingStore rejects writes for selected videos.
type failingStore struct {
	*storage.Memory
	failOn map[model.VideoID]bool
}

func (fs *failingStore) SaveTranscript(ctx context.Context, video model.Video, segments []model.Segment, replace bool) error {
	if fs.failOn[video.ID] {
		return &storage.IngestionError{VideoID: video.ID, Err: errors.New("disk full")}
	}
	return fs.Memory.SaveTranscript(ctx, video, segments, replace)
}

type slowLocator struct{}

func (slowLocator) Open(ctx context.Context, _ model.VideoID) (io.ReadCloser, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDirLocator(t *testing.T) {
	dir := t.TempDir()
	dl := NewDirLocator(dir, "")
	if exp := filepath.Join(dir, "123_en-x-autogen.vtt"); dl.Path("123") != exp {
		t.Errorf("exp %s, got %s", exp, dl.Path("123"))
	}
	if exp := filepath.Join(dir, "123_de.vtt"); NewDirLocator(dir, "de").Path("123") != exp {
		t.Errorf("exp %s, got %s", exp, NewDirLocator(dir, "de").Path("123"))
	}

	if _, err := dl.Open(context.Background(), "404"); !errors.Is(err, caption.ErrResourceUnavailable) {
		t.Fatalf("exp ErrResourceUnavailable, got %v", err)
	}
	writeCaption(t, dir, "123", graceVTT)
	rc, err := dl.Open(context.Background(), "123")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rc.Close()
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeCaption(t, dir, "1", graceVTT)
	writeCaption(t, dir, "2", hopeVTT)
	store := newStore(t)
	videos := []model.Video{
		{ID: "1", Title: "Faith and Works"},
		{ID: "2", Title: "Hope"},
		{ID: "3", Title: "No captions yet"},
	}

	o := New(store, NewDirLocator(dir, ""), discard())
	summary, err := o.Run(ctx, videos)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Succeeded != 2 || summary.Skipped != 1 || summary.Failed != 0 || summary.Unchanged != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for i, exp := range []struct {
		id       model.VideoID
		state    model.IngestState
		outcome  Outcome
		segments int
	}{
		{"1", model.StateIndexed, OutcomeIndexed, 2},
		{"2", model.StateIndexed, OutcomeIndexed, 2},
		{"3", model.StateUnseen, OutcomeSkipped, 0},
	} {
		act := summary.Results[i]
		if act.VideoID != exp.id || act.State != exp.state || act.Outcome != exp.outcome || act.Segments != exp.segments {
			t.Errorf("result %d: exp %+v, got %+v", i, exp, act)
		}
	}
	if !errors.Is(summary.Results[2].Err, caption.ErrResourceUnavailable) {
		t.Errorf("exp skipped video to carry ErrResourceUnavailable, got %v", summary.Results[2].Err)
	}

	segs, err := store.Segments(ctx, "2")
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(segs) != 2 || segs[0].Start != 0 || segs[0].End != 4 {
		t.Errorf("exp malformed start to become 0, got %+v", segs)
	}

	t.Run("second run is a no-op", func(t *testing.T) {
		summary, err := o.Run(ctx, videos)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if summary.Unchanged != 2 || summary.Skipped != 1 {
			t.Errorf("unexpected summary %+v", summary)
		}
		st, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if st.Segments != 4 {
			t.Errorf("exp segment count to stay 4, got %d", st.Segments)
		}
	})

	t.Run("forced run replaces", func(t *testing.T) {
		writeCaption(t, dir, "1", "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nrevised caption\n")
		summary, err := New(store, NewDirLocator(dir, ""), discard(), WithForce(true)).Run(ctx, videos[:1])
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if summary.Succeeded != 1 {
			t.Fatalf("unexpected summary %+v", summary)
		}
		segs, err := store.Segments(ctx, "1")
		if err != nil {
			t.Fatalf("segments: %v", err)
		}
		if len(segs) != 1 || segs[0].Text != "revised caption" {
			t.Errorf("exp replaced segments, got %+v", segs)
		}
	})
}

func TestRunBatchIsolation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, id := range []model.VideoID{"a", "b", "c", "d"} {
		writeCaption(t, dir, id, graceVTT)
	}
	store := &failingStore{Memory: newStore(t), failOn: map[model.VideoID]bool{"c": true}}
	m := metrics.New()

	summary, err := New(store, NewDirLocator(dir, ""), discard(), WithWorkers(3), WithMetrics(m)).Run(ctx, []model.Video{
		{ID: "a", Title: "A"}, {ID: "b", Title: "B"}, {ID: "c", Title: "C"}, {ID: "d", Title: "D"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Succeeded != 3 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	failures := summary.Failures()
	if len(failures) != 1 || failures[0].VideoID != "c" || failures[0].State != model.StateFailed {
		t.Fatalf("exp c to fail, got %+v", failures)
	}
	if !errors.Is(failures[0].Err, storage.ErrIngestionFailed) {
		t.Errorf("exp ErrIngestionFailed, got %v", failures[0].Err)
	}

	ids, err := store.ListProcessedVideoIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, ok := ids["d"]; !ok || len(ids) != 3 {
		t.Errorf("exp a, b and d stored, got %v", ids)
	}
	series, err := testutil.GatherAndCount(m.Registry(), "sermonsearch_ingest_videos_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if series != 2 {
		t.Errorf("exp indexed and failed series, got %d", series)
	}
}

func TestRunReadTimeout(t *testing.T) {
	store := newStore(t)
	summary, err := New(store, slowLocator{}, discard(), WithReadTimeout(10*time.Millisecond)).Run(context.Background(), []model.Video{{ID: "slow"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Skipped != 1 {
		t.Fatalf("exp skipped video, got %+v", summary)
	}
	err = summary.Results[0].Err
	if !errors.Is(err, caption.ErrResourceUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("exp timeout as ErrResourceUnavailable, got %v", err)
	}
}

func TestRunLogsMalformedTimestamps(t *testing.T) {
	dir := t.TempDir()
	writeCaption(t, dir, "2", hopeVTT)

	var mu sync.Mutex
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(lockedWriter{mu: &mu, w: buf}, nil))

	if _, err := New(newStore(t), NewDirLocator(dir, ""), logger).Run(context.Background(), []model.Video{{ID: "2"}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	out := buf.String()
	if !strings.Contains(out, "malformed caption timestamp") || !strings.Contains(out, "video=2") || !strings.Contains(out, "marker=bad") {
		t.Errorf("exp warning with video and marker, got:\n%s", out)
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
