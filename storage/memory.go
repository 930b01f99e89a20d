package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/beaubromley/vimeo-sermon-search/model"
	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/analysis/token/lowercase"
	"github.com/blevesearch/bleve/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/search/query"
)

const transcriptAnalyzer = "transcript"

type indexDoc struct {
	Text    string `json:"text"`
	VideoID string `json:"video_id"`
}

// Memory keeps videos and segments in process and indexes segment text in an
// in-memory bleve index. A write holds the lock for its whole unit of work, so
// readers never see a partial segment set.
type Memory struct {
	mu         sync.RWMutex
	playerHost string
	videos     map[model.VideoID]model.Video
	segments   map[model.VideoID][]model.Segment
	byID       map[int64]model.Segment
	nextID     int64
	index      bleve.Index
}

func NewMemory(playerHost string) (*Memory, error) {
	index, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	return &Memory{
		playerHost: playerHost,
		videos:     map[model.VideoID]model.Video{},
		segments:   map[model.VideoID][]model.Segment{},
		byID:       map[int64]model.Segment{},
		index:      index,
	}, nil
}

// newMemIndex indexes text already split by splitWords, so the index and the
// query side agree on word boundaries and nothing is dropped as a stop word.
func newMemIndex() (bleve.Index, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(transcriptAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("register analyzer: %w", err)
	}
	im.DefaultAnalyzer = transcriptAnalyzer

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return index, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index.Close()
}

func (m *Memory) DeepLinkFor(id model.VideoID, start float64) string {
	return model.DeepLink(m.playerHost, id, start)
}

func (m *Memory) UpsertVideo(_ context.Context, video model.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[video.ID] = video
	return nil
}

func (m *Memory) AddSegments(_ context.Context, id model.VideoID, segments []model.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.videos[id]; !ok {
		return ingestionFailed(id, fmt.Errorf("video %s: %w", id, ErrNotFound))
	}
	return ingestionFailed(id, m.write(id, segments, false))
}

func (m *Memory) SaveTranscript(_ context.Context, video model.Video, segments []model.Segment, replace bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(video.ID, segments, replace); err != nil {
		return ingestionFailed(video.ID, err)
	}
	m.videos[video.ID] = video
	return nil
}

// write stages the new segment set and the index batch, and only touches the
// maps once the batch has been applied. Callers hold the write lock.
func (m *Memory) write(id model.VideoID, segments []model.Segment, replace bool) error {
	batch := m.index.NewBatch()

	var kept []model.Segment
	if replace {
		for _, old := range m.segments[id] {
			batch.Delete(docID(old.ID))
		}
	} else {
		kept = append(kept, m.segments[id]...)
	}

	type key struct {
		start float64
		text  string
	}
	seen := make(map[key]struct{}, len(kept)+len(segments))
	for _, s := range kept {
		seen[key{s.Start, s.Text}] = struct{}{}
	}

	nextID := m.nextID
	var added []model.Segment
	for i, s := range segments {
		if err := validateSegment(i, s); err != nil {
			return err
		}
		k := key{s.Start, s.Text}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		nextID++
		seg := model.Segment{
			ID:      nextID,
			VideoID: id,
			Start:   s.Start,
			End:     s.End,
			Text:    s.Text,
			URL:     m.DeepLinkFor(id, s.Start),
		}
		if err := batch.Index(docID(seg.ID), newIndexDoc(seg)); err != nil {
			return fmt.Errorf("index segment %d: %w", i, err)
		}
		added = append(added, seg)
	}

	if err := m.index.Batch(batch); err != nil {
		return fmt.Errorf("apply index batch: %w", err)
	}

	if replace {
		for _, old := range m.segments[id] {
			delete(m.byID, old.ID)
		}
	}
	for _, seg := range added {
		m.byID[seg.ID] = seg
	}
	m.segments[id] = append(kept, added...)
	m.nextID = nextID
	return nil
}

func (m *Memory) ListProcessedVideoIDs(_ context.Context) (map[model.VideoID]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make(map[model.VideoID]struct{}, len(m.videos))
	for id := range m.videos {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *Memory) Videos(_ context.Context) ([]model.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	videos := make([]model.Video, 0, len(m.videos))
	for _, v := range m.videos {
		videos = append(videos, v)
	}
	sortVideos(videos)
	return videos, nil
}

func (m *Memory) Video(_ context.Context, id model.VideoID) (model.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.videos[id]
	if !ok {
		return model.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return v, nil
}

func (m *Memory) FindTitles(_ context.Context, q string) ([]model.Video, error) {
	if q == "" {
		return nil, nil
	}
	needle := strings.ToLower(q)

	m.mu.RLock()
	defer m.mu.RUnlock()
	videos := []model.Video{}
	for _, v := range m.videos {
		if strings.Contains(strings.ToLower(v.Title), needle) {
			videos = append(videos, v)
		}
	}
	sortVideos(videos)
	return videos, nil
}

func (m *Memory) Segments(_ context.Context, id model.VideoID) ([]model.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	segments := append([]model.Segment{}, m.segments[id]...)
	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].Start != segments[j].Start {
			return segments[i].Start < segments[j].Start
		}
		return segments[i].ID < segments[j].ID
	})
	return segments, nil
}

func (m *Memory) QueryTranscripts(_ context.Context, q string) ([]model.TranscriptMatch, error) {
	terms := parseTerms(q)
	if len(terms) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	count, err := m.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count index: %w", err)
	}
	if count == 0 {
		return []model.TranscriptMatch{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleveQuery(terms), int(count), 0, false)
	res, err := m.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}

	matches := make([]model.TranscriptMatch, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("index document %q: %w", hit.ID, err)
		}
		seg, ok := m.byID[id]
		if !ok {
			continue
		}
		v := m.videos[seg.VideoID]
		matches = append(matches, model.TranscriptMatch{Segment: seg, Title: v.Title, VideoURL: v.URL})
	}
	sortMatches(matches)
	return matches, nil
}

func (m *Memory) RebuildIndex(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := newMemIndex()
	if err != nil {
		return err
	}
	batch := index.NewBatch()
	for _, seg := range m.byID {
		if err := batch.Index(docID(seg.ID), newIndexDoc(seg)); err != nil {
			index.Close()
			return fmt.Errorf("index segment %d: %w", seg.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return fmt.Errorf("rebuild index: %w", err)
	}

	old := m.index
	m.index = index
	return old.Close()
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count, err := m.index.DocCount()
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return Stats{Videos: len(m.videos), Segments: len(m.byID), IndexEntries: int(count)}, nil
}

func bleveQuery(terms []term) query.Query {
	parts := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		if len(t) == 1 {
			mq := bleve.NewMatchQuery(t[0])
			mq.SetField("text")
			parts = append(parts, mq)
			continue
		}
		pq := bleve.NewMatchPhraseQuery(strings.Join(t, " "))
		pq.SetField("text")
		parts = append(parts, pq)
	}
	return bleve.NewConjunctionQuery(parts...)
}

func newIndexDoc(seg model.Segment) indexDoc {
	return indexDoc{Text: strings.Join(splitWords(seg.Text), " "), VideoID: string(seg.VideoID)}
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func sortVideos(videos []model.Video) {
	sort.Slice(videos, func(i, j int) bool {
		if videos[i].Title != videos[j].Title {
			return videos[i].Title < videos[j].Title
		}
		return videos[i].ID < videos[j].ID
	})
}

func sortMatches(matches []model.TranscriptMatch) {
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		switch {
		case a.Title != b.Title:
			return a.Title < b.Title
		case a.Start != b.Start:
			return a.Start < b.Start
		case a.VideoID != b.VideoID:
			return a.VideoID < b.VideoID
		default:
			return a.ID < b.ID
		}
	})
}

var _ Store = (*Memory)(nil)
