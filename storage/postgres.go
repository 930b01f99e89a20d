package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/beaubromley/vimeo-sermon-search/model"
	_ "github.com/lib/pq"
)

type PostgresInfo struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

func (pi PostgresInfo) DSN() string {
	if pi.URL != "" {
		return pi.URL
	}
	sslMode := pi.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := pi.Port
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pi.User, pi.Password),
		Host:     pi.Host + ":" + port,
		Path:     "/" + pi.Database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

type Postgres struct {
	db         *sql.DB
	playerHost string
}

func OpenPostgres(ctx context.Context, pi PostgresInfo, playerHost string) (*Postgres, error) {
	db, err := sql.Open("postgres", pi.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p, err := NewPostgres(ctx, db, playerHost)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an open connection and brings its schema up to date.
func NewPostgres(ctx context.Context, db *sql.DB, playerHost string) (*Postgres, error) {
	p := &Postgres{db: db, playerHost: playerHost}
	if err := migrate(ctx, db, postgresDialect, pgMigration); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) DeepLinkFor(id model.VideoID, start float64) string {
	return model.DeepLink(p.playerHost, id, start)
}

const pgUpsertVideo = `INSERT INTO video (id, title, duration, url, published_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
title = EXCLUDED.title,
duration = EXCLUDED.duration,
url = EXCLUDED.url,
published_at = EXCLUDED.published_at`

func (p *Postgres) UpsertVideo(ctx context.Context, video model.Video) error {
	if _, err := p.db.ExecContext(ctx, pgUpsertVideo, pgVideoArgs(video)...); err != nil {
		return fmt.Errorf("upsert video %s: %w", video.ID, err)
	}
	return nil
}

func (p *Postgres) AddSegments(ctx context.Context, id model.VideoID, segments []model.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	err := withTx(ctx, p.db, func(tx *sql.Tx) error {
		return p.insertSegments(ctx, tx, id, segments)
	})
	return ingestionFailed(id, err)
}

func (p *Postgres) SaveTranscript(ctx context.Context, video model.Video, segments []model.Segment, replace bool) error {
	err := withTx(ctx, p.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, pgUpsertVideo, pgVideoArgs(video)...); err != nil {
			return fmt.Errorf("upsert video: %w", err)
		}
		if replace {
			if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_search WHERE video_id = $1`, video.ID); err != nil {
				return fmt.Errorf("clear index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_segment WHERE video_id = $1`, video.ID); err != nil {
				return fmt.Errorf("clear segments: %w", err)
			}
		}
		return p.insertSegments(ctx, tx, video.ID, segments)
	})
	return ingestionFailed(video.ID, err)
}

func (p *Postgres) insertSegments(ctx context.Context, tx *sql.Tx, id model.VideoID, segments []model.Segment) error {
	for i, s := range segments {
		if err := validateSegment(i, s); err != nil {
			return err
		}
		link := p.DeepLinkFor(id, s.Start)

		var segID int64
		err := tx.QueryRowContext(ctx, `INSERT INTO transcript_segment
(video_id, start_time, end_time, text, url)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (video_id, start_time, md5(text)) DO NOTHING
RETURNING id`, id, s.Start, s.End, s.Text, link).Scan(&segID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// already stored
			continue
		case err != nil:
			return fmt.Errorf("insert segment %d: %w", i, err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO transcript_search
(segment_id, video_id, start_time, end_time, text, url, document)
VALUES ($1, $2, $3, $4, $5, $6, to_tsvector('simple', $5))`, segID, id, s.Start, s.End, s.Text, link); err != nil {
			return fmt.Errorf("index segment %d: %w", i, err)
		}
	}
	return nil
}

func (p *Postgres) ListProcessedVideoIDs(ctx context.Context) (map[model.VideoID]struct{}, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM video`)
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

const pgVideoColumns = `id, title, duration, url, published_at`

func (p *Postgres) Videos(ctx context.Context) ([]model.Video, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+pgVideoColumns+` FROM video ORDER BY title COLLATE "C", id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return pgScanVideos(rows)
}

func (p *Postgres) Video(ctx context.Context, id model.VideoID) (model.Video, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+pgVideoColumns+` FROM video WHERE id = $1`, id)
	video, err := pgScanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Video{}, fmt.Errorf("get video %s: %w", id, err)
	}
	return video, nil
}

func (p *Postgres) FindTitles(ctx context.Context, query string) ([]model.Video, error) {
	if query == "" {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+pgVideoColumns+` FROM video
WHERE strpos(lower(title), lower($1)) > 0
ORDER BY title COLLATE "C", id`, query)
	if err != nil {
		return nil, fmt.Errorf("find titles: %w", err)
	}
	return pgScanVideos(rows)
}

func (p *Postgres) Segments(ctx context.Context, id model.VideoID) ([]model.Segment, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, video_id, start_time, end_time, text, url
FROM transcript_segment WHERE video_id = $1 ORDER BY start_time, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	segments := []model.Segment{}
	for rows.Next() {
		var s model.Segment
		var videoID string
		if err := rows.Scan(&s.ID, &videoID, &s.Start, &s.End, &s.Text, &s.URL); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		s.VideoID = model.VideoID(videoID)
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

func (p *Postgres) QueryTranscripts(ctx context.Context, query string) ([]model.TranscriptMatch, error) {
	terms := parseTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT ts.segment_id, ts.video_id, ts.start_time, ts.end_time, ts.text, ts.url, v.title, v.url
FROM transcript_search ts
JOIN video v ON v.id = ts.video_id
WHERE ts.document @@ to_tsquery('simple', $1)
ORDER BY v.title COLLATE "C", ts.start_time, ts.video_id, ts.segment_id`, tsQuery(terms))
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	return scanMatches(rows)
}

func (p *Postgres) RebuildIndex(ctx context.Context) error {
	return withTx(ctx, p.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_search`); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO transcript_search
(segment_id, video_id, start_time, end_time, text, url, document)
SELECT id, video_id, start_time, end_time, text, url, to_tsvector('simple', text)
FROM transcript_segment`); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := p.db.QueryRowContext(ctx, `SELECT
(SELECT count(*) FROM video),
(SELECT count(*) FROM transcript_segment),
(SELECT count(*) FROM transcript_search)`).Scan(&st.Videos, &st.Segments, &st.IndexEntries)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func pgVideoArgs(v model.Video) []any {
	var published any
	if !v.PublishedAt.IsZero() {
		published = v.PublishedAt
	}
	return []any{v.ID, v.Title, v.Duration, v.URL, published}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func pgScanVideo(row rowScanner) (model.Video, error) {
	var v model.Video
	var id string
	var published sql.NullTime
	if err := row.Scan(&id, &v.Title, &v.Duration, &v.URL, &published); err != nil {
		return model.Video{}, err
	}
	v.ID = model.VideoID(id)
	if published.Valid {
		v.PublishedAt = published.Time
	}
	return v, nil
}

func pgScanVideos(rows *sql.Rows) ([]model.Video, error) {
	defer rows.Close()
	videos := []model.Video{}
	for rows.Next() {
		v, err := pgScanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func scanMatches(rows *sql.Rows) ([]model.TranscriptMatch, error) {
	defer rows.Close()
	matches := []model.TranscriptMatch{}
	for rows.Next() {
		var m model.TranscriptMatch
		var videoID string
		if err := rows.Scan(&m.ID, &videoID, &m.Start, &m.End, &m.Text, &m.URL, &m.Title, &m.VideoURL); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.VideoID = model.VideoID(videoID)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

var _ Store = (*Postgres)(nil)
