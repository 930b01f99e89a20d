package storage

var pgMigration = []string{
	`CREATE TABLE video (
id VARCHAR(255) PRIMARY KEY,
title TEXT NOT NULL DEFAULT '',
duration INTEGER NOT NULL DEFAULT 0,
url TEXT NOT NULL DEFAULT '',
published_at TIMESTAMPTZ
)`,
	`CREATE TABLE transcript_segment (
id BIGSERIAL PRIMARY KEY,
video_id VARCHAR(255) NOT NULL REFERENCES video(id),
start_time DOUBLE PRECISION NOT NULL,
end_time DOUBLE PRECISION NOT NULL,
text TEXT NOT NULL,
url TEXT NOT NULL
)`,
	`CREATE UNIQUE INDEX transcript_segment_video_start_text
ON transcript_segment (video_id, start_time, md5(text))`,
	`CREATE TABLE transcript_search (
segment_id BIGINT PRIMARY KEY REFERENCES transcript_segment(id) ON DELETE CASCADE,
video_id VARCHAR(255) NOT NULL,
start_time DOUBLE PRECISION NOT NULL,
end_time DOUBLE PRECISION NOT NULL,
text TEXT NOT NULL,
url TEXT NOT NULL,
document TSVECTOR NOT NULL
)`,
	`CREATE INDEX transcript_search_document ON transcript_search USING GIN (document)`,
	`CREATE INDEX transcript_search_video ON transcript_search (video_id)`,
}

var sqliteMigration = []string{
	`CREATE TABLE video (
id TEXT PRIMARY KEY,
title TEXT NOT NULL DEFAULT '',
duration INTEGER NOT NULL DEFAULT 0,
url TEXT NOT NULL DEFAULT '',
published_at TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE transcript_segment (
id INTEGER PRIMARY KEY AUTOINCREMENT,
video_id TEXT NOT NULL REFERENCES video(id),
start_time REAL NOT NULL,
end_time REAL NOT NULL,
text TEXT NOT NULL,
url TEXT NOT NULL
)`,
	`CREATE UNIQUE INDEX transcript_segment_video_start_text
ON transcript_segment (video_id, start_time, text)`,
	`CREATE VIRTUAL TABLE transcript_search USING fts5(
text,
video_id UNINDEXED,
start_time UNINDEXED,
end_time UNINDEXED,
url UNINDEXED,
tokenize = 'unicode61'
)`,
}
