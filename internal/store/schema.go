package store

// Schema v1 - library index and missing-item registry
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Tracks known to exist in the media library (normalized keys)
CREATE TABLE IF NOT EXISTS library_index (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title_clean TEXT NOT NULL,
  artist_clean TEXT NOT NULL,
  album_clean TEXT NOT NULL DEFAULT '',
  year INTEGER,
  added_at DATETIME,
  UNIQUE(artist_clean, album_clean, title_clean)
);

CREATE INDEX IF NOT EXISTS idx_library_artist_title ON library_index(artist_clean, title_clean);
CREATE INDEX IF NOT EXISTS idx_library_title_clean ON library_index(title_clean);
CREATE INDEX IF NOT EXISTS idx_library_artist_clean ON library_index(artist_clean);
CREATE INDEX IF NOT EXISTS idx_library_album_clean ON library_index(album_clean);
CREATE INDEX IF NOT EXISTS idx_library_composite ON library_index(artist_clean, album_clean, title_clean);
CREATE INDEX IF NOT EXISTS idx_library_year ON library_index(year);
CREATE INDEX IF NOT EXISTS idx_library_added_at ON library_index(added_at);

-- Items believed absent from the library (raw strings)
CREATE TABLE IF NOT EXISTS missing_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  artist TEXT NOT NULL,
  album TEXT NOT NULL DEFAULT '',
  source_context TEXT NOT NULL,
  source_context_id TEXT,
  status TEXT DEFAULT 'missing',
  added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(title, artist, source_context)
);

CREATE INDEX IF NOT EXISTS idx_missing_title_artist ON missing_items(title, artist);
CREATE INDEX IF NOT EXISTS idx_missing_status ON missing_items(status);
CREATE INDEX IF NOT EXISTS idx_missing_source_context ON missing_items(source_context);
CREATE INDEX IF NOT EXISTS idx_missing_source_context_id ON missing_items(source_context_id);
CREATE INDEX IF NOT EXISTS idx_missing_added_at ON missing_items(added_at);
`

// Schema v2 - download tracking on missing items
const schemaV2 = `
ALTER TABLE missing_items ADD COLUMN source_service TEXT;
ALTER TABLE missing_items ADD COLUMN direct_download_id TEXT;
ALTER TABLE missing_items ADD COLUMN original_url TEXT;

CREATE INDEX IF NOT EXISTS idx_missing_source_service ON missing_items(source_service);
CREATE INDEX IF NOT EXISTS idx_missing_direct_download ON missing_items(direct_download_id);
`
