package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/beaubromley/vimeo-sermon-search/model"
)

type storeFactory func(t *testing.T) Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"sqlite": func(t *testing.T) Store {
			t.Helper()
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "search.db"), model.DefaultPlayerHost)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"memory": func(t *testing.T) Store {
			t.Helper()
			s, err := NewMemory(model.DefaultPlayerHost)
			if err != nil {
				t.Fatalf("new memory: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range factories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func seed(t *testing.T, s Store, v model.Video, segs ...model.Segment) {
	t.Helper()
	ctx := context.Background()
	if err := s.UpsertVideo(ctx, v); err != nil {
		t.Fatalf("upsert %s: %v", v.ID, err)
	}
	if err := s.AddSegments(ctx, v.ID, segs); err != nil {
		t.Fatalf("add segments %s: %v", v.ID, err)
	}
}

func seg(start, end float64, text string) model.Segment {
	return model.Segment{Start: start, End: end, Text: text}
}

func TestUpsertVideo(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		published := time.Date(2023, 4, 9, 10, 30, 0, 0, time.UTC)
		v := model.Video{ID: "101", Title: "Easter Sunday", Duration: 3600, URL: "https://vimeo.com/101", PublishedAt: published}

		for i := 0; i < 2; i++ {
			if err := s.UpsertVideo(ctx, v); err != nil {
				t.Fatalf("upsert %d: %v", i, err)
			}
		}
		v.Title = "Easter Sunday 2023"
		if err := s.UpsertVideo(ctx, v); err != nil {
			t.Fatalf("upsert renamed: %v", err)
		}

		videos, err := s.Videos(ctx)
		if err != nil {
			t.Fatalf("videos: %v", err)
		}
		if len(videos) != 1 {
			t.Fatalf("exp 1 video, got %d", len(videos))
		}
		got := videos[0]
		if got.Title != "Easter Sunday 2023" || got.Duration != 3600 || got.URL != v.URL {
			t.Errorf("unexpected video %+v", got)
		}
		if !got.PublishedAt.Equal(published) {
			t.Errorf("exp published %v, got %v", published, got.PublishedAt)
		}
	})
}

func TestVideoNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.Video(context.Background(), "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("exp ErrNotFound, got %v", err)
		}
	})
}

func TestListProcessedVideoIDs(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ids, err := s.ListProcessedVideoIDs(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(ids) != 0 {
			t.Fatalf("exp empty set, got %v", ids)
		}

		seed(t, s, model.Video{ID: "1", Title: "One"})
		seed(t, s, model.Video{ID: "2", Title: "Two"}, seg(0, 1, "hello"))

		ids, err = s.ListProcessedVideoIDs(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("exp 2 ids, got %v", ids)
		}
		for _, id := range []model.VideoID{"1", "2"} {
			if _, ok := ids[id]; !ok {
				t.Errorf("missing %s", id)
			}
		}
	})
}

func TestAddSegments(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, model.Video{ID: "42", Title: "Faith and Works"},
			seg(5, 9, "faith without works is dead"),
			seg(10, 14, "by grace you have been saved"),
		)

		t.Run("empty batch", func(t *testing.T) {
			if err := s.AddSegments(ctx, "42", nil); err != nil {
				t.Fatalf("exp nil, got %v", err)
			}
		})

		t.Run("duplicates", func(t *testing.T) {
			if err := s.AddSegments(ctx, "42", []model.Segment{seg(10, 14, "by grace you have been saved")}); err != nil {
				t.Fatalf("add: %v", err)
			}
			st, err := s.Stats(ctx)
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if st.Segments != 2 || st.IndexEntries != 2 {
				t.Errorf("exp 2 segments and entries, got %+v", st)
			}
		})

		t.Run("segments carry deep links", func(t *testing.T) {
			segs, err := s.Segments(ctx, "42")
			if err != nil {
				t.Fatalf("segments: %v", err)
			}
			if len(segs) != 2 {
				t.Fatalf("exp 2 segments, got %d", len(segs))
			}
			if segs[0].Start != 5 || segs[1].Start != 10 {
				t.Errorf("exp segments in time order, got %+v", segs)
			}
			if exp := "https://player.vimeo.com/video/42#t=10s"; segs[1].URL != exp {
				t.Errorf("exp %s, got %s", exp, segs[1].URL)
			}
		})

		t.Run("invalid segment rolls back", func(t *testing.T) {
			err := s.AddSegments(ctx, "42", []model.Segment{
				seg(20, 25, "this one is fine"),
				seg(30, 29, "this one ends before it starts"),
			})
			if !errors.Is(err, ErrIngestionFailed) {
				t.Fatalf("exp ErrIngestionFailed, got %v", err)
			}
			var ie *IngestionError
			if !errors.As(err, &ie) || ie.VideoID != "42" {
				t.Fatalf("exp IngestionError for 42, got %v", err)
			}
			segs, err := s.Segments(ctx, "42")
			if err != nil {
				t.Fatalf("segments: %v", err)
			}
			if len(segs) != 2 {
				t.Errorf("exp rollback to 2 segments, got %d", len(segs))
			}
			matches, err := s.QueryTranscripts(ctx, "fine")
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(matches) != 0 {
				t.Errorf("exp no index entries from rolled back batch, got %v", matches)
			}
		})
	})
}

func TestSaveTranscript(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		v := model.Video{ID: "7", Title: "Hope"}
		if err := s.SaveTranscript(ctx, v, []model.Segment{seg(0, 2, "first hope"), seg(2, 4, "second hope")}, false); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := s.SaveTranscript(ctx, v, []model.Segment{seg(0, 3, "rewritten hope")}, true); err != nil {
			t.Fatalf("replace: %v", err)
		}

		matches, err := s.QueryTranscripts(ctx, "hope")
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(matches) != 1 || matches[0].Text != "rewritten hope" {
			t.Fatalf("exp only rewritten segment, got %+v", matches)
		}
		st, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if st.Videos != 1 || st.Segments != 1 || st.IndexEntries != 1 {
			t.Errorf("unexpected stats %+v", st)
		}

		err = s.SaveTranscript(ctx, model.Video{ID: "8", Title: "Broken"}, []model.Segment{seg(-1, 2, "bad")}, false)
		if !errors.Is(err, ErrIngestionFailed) {
			t.Fatalf("exp ErrIngestionFailed, got %v", err)
		}
		if _, err := s.Video(ctx, "8"); !errors.Is(err, ErrNotFound) {
			t.Errorf("exp failed save to leave no video, got %v", err)
		}
	})
}

func TestQueryTranscripts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, model.Video{ID: "2", Title: "Beta", URL: "https://vimeo.com/2"},
			seg(30, 33, "Grace upon grace."),
			seg(3, 6, "amazing grace how sweet"),
		)
		seed(t, s, model.Video{ID: "1", Title: "Alpha", URL: "https://vimeo.com/1"},
			seg(125.9, 130, "saved by GRACE through faith"),
			seg(140, 150, "faith comes by hearing"),
		)

		for _, tc := range []struct {
			name  string
			query string
			exp   []string
		}{
			{
				name:  "single word ordered by title then time",
				query: "grace",
				exp:   []string{"1@125.9", "2@3", "2@30"},
			},
			{
				name:  "all words required",
				query: "faith hearing",
				exp:   []string{"1@140"},
			},
			{
				name:  "phrase",
				query: `"grace how sweet"`,
				exp:   []string{"2@3"},
			},
			{
				name:  "phrase out of order",
				query: `"sweet grace"`,
				exp:   []string{},
			},
			{
				name:  "punctuation ignored",
				query: "grace!",
				exp:   []string{"1@125.9", "2@3", "2@30"},
			},
			{
				name:  "no match",
				query: "predestination",
				exp:   []string{},
			},
			{
				name:  "empty",
				query: "",
				exp:   []string{},
			},
			{
				name:  "only punctuation",
				query: `"?!"`,
				exp:   []string{},
			},
		} {
			t.Run(tc.name, func(t *testing.T) {
				matches, err := s.QueryTranscripts(ctx, tc.query)
				if err != nil {
					t.Fatalf("query: %v", err)
				}
				got := make([]string, 0, len(matches))
				for _, m := range matches {
					got = append(got, matchKey(m))
				}
				if !equalStrings(tc.exp, got) {
					t.Errorf("exp %v, got %v", tc.exp, got)
				}
			})
		}

		matches, err := s.QueryTranscripts(ctx, "grace")
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		first := matches[0]
		if first.Title != "Alpha" || first.VideoURL != "https://vimeo.com/1" {
			t.Errorf("exp match joined with video, got %+v", first)
		}
		if exp := "https://player.vimeo.com/video/1#t=125s"; first.URL != exp {
			t.Errorf("exp %s, got %s", exp, first.URL)
		}
	})
}

func TestFindTitles(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, model.Video{ID: "3", Title: "Works of Faith"})
		seed(t, s, model.Video{ID: "1", Title: "Faith and Works"})
		seed(t, s, model.Video{ID: "2", Title: "Hope"})

		videos, err := s.FindTitles(ctx, "FAITH")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(videos) != 2 || videos[0].ID != "1" || videos[1].ID != "3" {
			t.Fatalf("exp [1 3], got %+v", videos)
		}

		videos, err = s.FindTitles(ctx, "")
		if err != nil {
			t.Fatalf("find empty: %v", err)
		}
		if len(videos) != 0 {
			t.Errorf("exp no titles for empty query, got %+v", videos)
		}
	})
}

func TestRebuildIndex(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, model.Video{ID: "5", Title: "Love"}, seg(1, 2, "love is patient"), seg(2, 3, "love is kind"))

		if err := s.RebuildIndex(ctx); err != nil {
			t.Fatalf("rebuild: %v", err)
		}
		st, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if st.Segments != 2 || st.IndexEntries != 2 {
			t.Errorf("exp 2 segments and entries, got %+v", st)
		}
		matches, err := s.QueryTranscripts(ctx, "kind")
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(matches) != 1 {
			t.Errorf("exp 1 match after rebuild, got %d", len(matches))
		}
	})
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "search.db")

	s, err := OpenSQLite(ctx, path, model.DefaultPlayerHost)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seed(t, s, model.Video{ID: "9", Title: "Peace"}, seg(0, 1, "peace be with you"))
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenSQLite(ctx, path, model.DefaultPlayerHost)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	matches, err := s.QueryTranscripts(ctx, "peace")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("exp 1 match after reopen, got %d", len(matches))
	}
}

func matchKey(m model.TranscriptMatch) string {
	return string(m.VideoID) + "@" + formatFloat(m.Start)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
