package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// IndexedTrack is one row of the library index. Text columns hold
// normalized strings.
type IndexedTrack struct {
	ID          int64         `db:"id"`
	TitleClean  string        `db:"title_clean"`
	ArtistClean string        `db:"artist_clean"`
	AlbumClean  string        `db:"album_clean"`
	Year        sql.NullInt64 `db:"year"`
	AddedAt     sql.NullTime  `db:"added_at"`
}

// Candidate is a (title, artist) pair pulled from the index for fuzzy scoring
type Candidate struct {
	TitleClean  string `db:"title_clean"`
	ArtistClean string `db:"artist_clean"`
}

const insertIndexedTrackSQL = `
	INSERT OR IGNORE INTO library_index (title_clean, artist_clean, album_clean, year, added_at)
	VALUES (?, ?, ?, ?, ?)`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern returns a LIKE pattern matching any value that contains s.
// Queries using it must declare ESCAPE '\'.
func ContainsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// InsertIndexedTrack inserts one row, ignoring duplicates.
// Returns true when a new row was written.
func (s *Store) InsertIndexedTrack(ctx context.Context, t *IndexedTrack) (bool, error) {
	result, err := s.ExecWithRetry(ctx, insertIndexedTrackSQL,
		t.TitleClean, t.ArtistClean, t.AlbumClean, t.Year, t.AddedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert indexed track: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertIndexedTracks inserts rows in a single transaction, ignoring
// duplicates, and returns how many rows were actually written.
func (s *Store) InsertIndexedTracks(ctx context.Context, rows []IndexedTrack) (int64, error) {
	var inserted int64

	err := s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		inserted = 0

		stmt, err := tx.PreparexContext(ctx, insertIndexedTrackSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := range rows {
			r := &rows[i]
			result, err := stmt.ExecContext(ctx, r.TitleClean, r.ArtistClean, r.AlbumClean, r.Year, r.AddedAt)
			if err != nil {
				return fmt.Errorf("failed to insert indexed track: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read rows affected: %w", err)
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// ClearIndex deletes every row of the library index
func (s *Store) ClearIndex(ctx context.Context) (int64, error) {
	result, err := s.ExecWithRetry(ctx, "DELETE FROM library_index")
	if err != nil {
		return 0, fmt.Errorf("failed to clear library index: %w", err)
	}
	return result.RowsAffected()
}

// CountIndexed returns the number of rows in the library index
func (s *Store) CountIndexed(ctx context.Context) (int64, error) {
	var count int64
	err := s.WithConn(ctx, func(q DBTX) error {
		return sqlx.GetContext(ctx, q, &count, "SELECT COUNT(*) FROM library_index")
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count indexed tracks: %w", err)
	}
	return count, nil
}

// exists runs a query returning at most one row and reports whether it did
func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	err := s.WithConn(ctx, func(q DBTX) error {
		rows, err := q.QueryxContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		found = rows.Next()
		return rows.Err()
	})
	return found, err
}

// HasExactTrack reports whether (title, artist) is indexed verbatim
func (s *Store) HasExactTrack(ctx context.Context, title, artist string) (bool, error) {
	return s.exists(ctx,
		"SELECT id FROM library_index WHERE title_clean = ? AND artist_clean = ? LIMIT 1",
		title, artist)
}

// HasTitleWithArtistOrBlank reports whether title is indexed with the same
// artist or with no artist at all
func (s *Store) HasTitleWithArtistOrBlank(ctx context.Context, title, artist string) (bool, error) {
	return s.exists(ctx,
		"SELECT id FROM library_index WHERE title_clean = ? AND (artist_clean = ? OR artist_clean = '') LIMIT 1",
		title, artist)
}

// HasTitleWithArtistContaining reports whether title is indexed with an
// artist containing fragment
func (s *Store) HasTitleWithArtistContaining(ctx context.Context, title, fragment string) (bool, error) {
	return s.exists(ctx,
		`SELECT id FROM library_index WHERE title_clean = ? AND artist_clean LIKE ? ESCAPE '\' LIMIT 1`,
		title, ContainsPattern(fragment))
}

// FindCandidates returns rows whose title or artist contains any fragment
func (s *Store) FindCandidates(ctx context.Context, fragments []string) ([]Candidate, error) {
	if len(fragments) == 0 {
		return nil, nil
	}

	conditions := make([]string, 0, len(fragments))
	args := make([]any, 0, 2*len(fragments))
	for _, f := range fragments {
		p := ContainsPattern(f)
		conditions = append(conditions, `title_clean LIKE ? ESCAPE '\' OR artist_clean LIKE ? ESCAPE '\'`)
		args = append(args, p, p)
	}
	query := "SELECT title_clean, artist_clean FROM library_index WHERE " + strings.Join(conditions, " OR ")

	var candidates []Candidate
	err := s.WithConn(ctx, func(q DBTX) error {
		candidates = candidates[:0]
		return sqlx.SelectContext(ctx, q, &candidates, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	return candidates, nil
}

// FindTitlesContaining returns indexed titles containing fragment
func (s *Store) FindTitlesContaining(ctx context.Context, fragment string) ([]string, error) {
	var titles []string
	err := s.WithConn(ctx, func(q DBTX) error {
		titles = titles[:0]
		return sqlx.SelectContext(ctx, q, &titles,
			`SELECT title_clean FROM library_index WHERE title_clean LIKE ? ESCAPE '\'`,
			ContainsPattern(fragment))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query titles: %w", err)
	}
	return titles, nil
}

// CountAlbumTracks counts indexed tracks of an album. When albumPartial or
// artistPartial is set that column matches by containment instead of equality.
func (s *Store) CountAlbumTracks(ctx context.Context, album, artist string, albumPartial, artistPartial bool) (int64, error) {
	albumCond, albumArg := "album_clean = ?", any(album)
	if albumPartial {
		albumCond, albumArg = `album_clean LIKE ? ESCAPE '\'`, ContainsPattern(album)
	}
	artistCond, artistArg := "artist_clean = ?", any(artist)
	if artistPartial {
		artistCond, artistArg = `artist_clean LIKE ? ESCAPE '\'`, ContainsPattern(artist)
	}

	query := "SELECT COUNT(*) FROM library_index WHERE " + albumCond + " AND " + artistCond

	var count int64
	err := s.WithConn(ctx, func(q DBTX) error {
		return sqlx.GetContext(ctx, q, &count, query, albumArg, artistArg)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count album tracks: %w", err)
	}
	return count, nil
}

// ListIndexed returns up to limit rows ordered by id, starting after afterID
func (s *Store) ListIndexed(ctx context.Context, afterID int64, limit int) ([]IndexedTrack, error) {
	var tracks []IndexedTrack
	err := s.WithConn(ctx, func(q DBTX) error {
		tracks = tracks[:0]
		return sqlx.SelectContext(ctx, q, &tracks, `
			SELECT id, title_clean, artist_clean, album_clean, year, added_at
			FROM library_index WHERE id > ?
			ORDER BY id LIMIT ?
		`, afterID, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed tracks: %w", err)
	}
	return tracks, nil
}
