package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/beaubromley/vimeo-sermon-search/model"
	_ "modernc.org/sqlite"
)

// SQLite is the embedded store. The search index is an FTS5 table whose rowid
// equals the segment id.
type SQLite struct {
	db         *sql.DB
	playerHost string
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path, playerHost string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Set("_txlock", "immediate")
	db, err := sql.Open("sqlite", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &SQLite{db: db, playerHost: playerHost}
	if err := migrate(ctx, db, sqliteDialect, sqliteMigration); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) DeepLinkFor(id model.VideoID, start float64) string {
	return model.DeepLink(s.playerHost, id, start)
}

const sqliteUpsertVideo = `INSERT INTO video (id, title, duration, url, published_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
title = excluded.title,
duration = excluded.duration,
url = excluded.url,
published_at = excluded.published_at`

func (s *SQLite) UpsertVideo(ctx context.Context, video model.Video) error {
	if _, err := s.db.ExecContext(ctx, sqliteUpsertVideo, sqliteVideoArgs(video)...); err != nil {
		return fmt.Errorf("upsert video %s: %w", video.ID, err)
	}
	return nil
}

func (s *SQLite) AddSegments(ctx context.Context, id model.VideoID, segments []model.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.insertSegments(ctx, tx, id, segments)
	})
	return ingestionFailed(id, err)
}

func (s *SQLite) SaveTranscript(ctx context.Context, video model.Video, segments []model.Segment, replace bool) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqliteUpsertVideo, sqliteVideoArgs(video)...); err != nil {
			return fmt.Errorf("upsert video: %w", err)
		}
		if replace {
			if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_search WHERE rowid IN
(SELECT id FROM transcript_segment WHERE video_id = ?)`, video.ID); err != nil {
				return fmt.Errorf("clear index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_segment WHERE video_id = ?`, video.ID); err != nil {
				return fmt.Errorf("clear segments: %w", err)
			}
		}
		return s.insertSegments(ctx, tx, video.ID, segments)
	})
	return ingestionFailed(video.ID, err)
}

func (s *SQLite) insertSegments(ctx context.Context, tx *sql.Tx, id model.VideoID, segments []model.Segment) error {
	for i, seg := range segments {
		if err := validateSegment(i, seg); err != nil {
			return err
		}
		link := s.DeepLinkFor(id, seg.Start)

		res, err := tx.ExecContext(ctx, `INSERT INTO transcript_segment
(video_id, start_time, end_time, text, url)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (video_id, start_time, text) DO NOTHING`, id, seg.Start, seg.End, seg.Text, link)
		if err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		} else if n == 0 {
			// already stored
			continue
		}
		segID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO transcript_search
(rowid, text, video_id, start_time, end_time, url)
VALUES (?, ?, ?, ?, ?, ?)`, segID, seg.Text, id, seg.Start, seg.End, link); err != nil {
			return fmt.Errorf("index segment %d: %w", i, err)
		}
	}
	return nil
}

func (s *SQLite) ListProcessedVideoIDs(ctx context.Context) (map[model.VideoID]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM video`)
	if err != nil {
		return nil, fmt.Errorf("list processed videos: %w", err)
	}
	defer rows.Close()

	ids := map[model.VideoID]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan video id: %w", err)
		}
		ids[model.VideoID(id)] = struct{}{}
	}
	return ids, rows.Err()
}

const sqliteVideoColumns = `id, title, duration, url, published_at`

func (s *SQLite) Videos(ctx context.Context) ([]model.Video, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteVideoColumns+` FROM video ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return sqliteScanVideos(rows)
}

func (s *SQLite) Video(ctx context.Context, id model.VideoID) (model.Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteVideoColumns+` FROM video WHERE id = ?`, id)
	video, err := sqliteScanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Video{}, fmt.Errorf("get video %s: %w", id, err)
	}
	return video, nil
}

func (s *SQLite) FindTitles(ctx context.Context, query string) ([]model.Video, error) {
	if query == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteVideoColumns+` FROM video
WHERE instr(lower(title), lower(?)) > 0
ORDER BY title, id`, query)
	if err != nil {
		return nil, fmt.Errorf("find titles: %w", err)
	}
	return sqliteScanVideos(rows)
}

func (s *SQLite) Segments(ctx context.Context, id model.VideoID) ([]model.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, video_id, start_time, end_time, text, url
FROM transcript_segment WHERE video_id = ? ORDER BY start_time, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	segments := []model.Segment{}
	for rows.Next() {
		var seg model.Segment
		var videoID string
		if err := rows.Scan(&seg.ID, &videoID, &seg.Start, &seg.End, &seg.Text, &seg.URL); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		seg.VideoID = model.VideoID(videoID)
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func (s *SQLite) QueryTranscripts(ctx context.Context, query string) ([]model.TranscriptMatch, error) {
	terms := parseTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT transcript_search.rowid, transcript_search.video_id,
CAST(transcript_search.start_time AS REAL), CAST(transcript_search.end_time AS REAL),
transcript_search.text, transcript_search.url, v.title, v.url
FROM transcript_search
JOIN video v ON v.id = transcript_search.video_id
WHERE transcript_search MATCH ?
ORDER BY v.title, CAST(transcript_search.start_time AS REAL), transcript_search.video_id, transcript_search.rowid`, ftsMatch(terms))
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	return scanMatches(rows)
}

func (s *SQLite) RebuildIndex(ctx context.Context) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_search`); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO transcript_search
(rowid, text, video_id, start_time, end_time, url)
SELECT id, text, video_id, start_time, end_time, url FROM transcript_segment`); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		return nil
	})
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
(SELECT count(*) FROM video),
(SELECT count(*) FROM transcript_segment),
(SELECT count(*) FROM transcript_search)`).Scan(&st.Videos, &st.Segments, &st.IndexEntries)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func sqliteVideoArgs(v model.Video) []any {
	published := ""
	if !v.PublishedAt.IsZero() {
		published = v.PublishedAt.Format(time.RFC3339Nano)
	}
	return []any{v.ID, v.Title, v.Duration, v.URL, published}
}

func sqliteScanVideo(row rowScanner) (model.Video, error) {
	var v model.Video
	var id, published string
	if err := row.Scan(&id, &v.Title, &v.Duration, &v.URL, &published); err != nil {
		return model.Video{}, err
	}
	v.ID = model.VideoID(id)
	if published != "" {
		t, err := time.Parse(time.RFC3339Nano, published)
		if err != nil {
			return model.Video{}, fmt.Errorf("parse published_at %q: %w", published, err)
		}
		v.PublishedAt = t
	}
	return v, nil
}

func sqliteScanVideos(rows *sql.Rows) ([]model.Video, error) {
	defer rows.Close()
	videos := []model.Video{}
	for rows.Next() {
		v, err := sqliteScanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

var _ Store = (*SQLite)(nil)
