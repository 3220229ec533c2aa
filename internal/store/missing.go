package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// MissingItem is one row of the missing-item registry. Status is kept raw
// so that out-of-domain values can be detected by callers.
type MissingItem struct {
	ID               int64          `db:"id"`
	Title            string         `db:"title"`
	Artist           string         `db:"artist"`
	Album            string         `db:"album"`
	SourceContext    string         `db:"source_context"`
	SourceContextID  sql.NullString `db:"source_context_id"`
	SourceService    sql.NullString `db:"source_service"`
	Status           sql.NullString `db:"status"`
	AddedAt          sql.NullTime   `db:"added_at"`
	DirectDownloadID sql.NullString `db:"direct_download_id"`
	OriginalURL      sql.NullString `db:"original_url"`
}

const missingColumns = `id, title, artist, album, source_context, source_context_id,
	source_service, status, added_at, direct_download_id, original_url`

// InsertMissingItemIfAbsent inserts item with the given status unless a row
// with the same (title, artist, source_context) exists. Returns the row id
// and whether a new row was written.
func (s *Store) InsertMissingItemIfAbsent(ctx context.Context, item *MissingItem, status string) (int64, bool, error) {
	var id int64
	var inserted bool

	err := s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		inserted = false
		err := tx.GetContext(ctx, &id, `
			SELECT id FROM missing_items
			WHERE title = ? AND artist = ? AND source_context = ?
		`, item.Title, item.Artist, item.SourceContext)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up missing item: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO missing_items (title, artist, album, source_context, source_context_id,
			                           source_service, status, added_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, item.Title, item.Artist, item.Album, item.SourceContext, item.SourceContextID,
			item.SourceService, status, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to insert missing item: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get missing item ID: %w", err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	return id, inserted, nil
}

// GetMissingItem retrieves a registry row by id, or nil if there is none
func (s *Store) GetMissingItem(ctx context.Context, id int64) (*MissingItem, error) {
	item := &MissingItem{}
	err := s.WithConn(ctx, func(q DBTX) error {
		return sqlx.GetContext(ctx, q, item,
			"SELECT "+missingColumns+" FROM missing_items WHERE id = ?", id)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get missing item: %w", err)
	}

	return item, nil
}

// ListMissingItems returns registry rows, newest first. With no statuses
// every row is returned; the empty string selects rows whose status is NULL.
func (s *Store) ListMissingItems(ctx context.Context, statuses []string) ([]MissingItem, error) {
	query := "SELECT " + missingColumns + " FROM missing_items"
	var args []any

	if len(statuses) > 0 {
		var conds []string
		var values []string
		for _, st := range statuses {
			if st == "" {
				conds = append(conds, "status IS NULL")
				continue
			}
			values = append(values, st)
		}
		if len(values) > 0 {
			in, inArgs, err := sqlx.In("status IN (?)", values)
			if err != nil {
				return nil, fmt.Errorf("failed to build status filter: %w", err)
			}
			conds = append(conds, in)
			args = append(args, inArgs...)
		}
		query += " WHERE " + strings.Join(conds, " OR ")
	}
	query += " ORDER BY id DESC"

	var items []MissingItem
	err := s.WithConn(ctx, func(q DBTX) error {
		items = items[:0]
		return sqlx.SelectContext(ctx, q, &items, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list missing items: %w", err)
	}
	return items, nil
}

// FindMissingByTitleArtist returns every registry row for (title, artist)
func (s *Store) FindMissingByTitleArtist(ctx context.Context, title, artist string) ([]MissingItem, error) {
	var items []MissingItem
	err := s.WithConn(ctx, func(q DBTX) error {
		items = items[:0]
		return sqlx.SelectContext(ctx, q, &items,
			"SELECT "+missingColumns+" FROM missing_items WHERE title = ? AND artist = ? ORDER BY id",
			title, artist)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find missing items: %w", err)
	}
	return items, nil
}

// UpdateMissingStatus sets the status of one row
func (s *Store) UpdateMissingStatus(ctx context.Context, id int64, status string) (int64, error) {
	return s.execCount(ctx, "update missing status",
		"UPDATE missing_items SET status = ? WHERE id = ?", status, id)
}

// UpdateMissingStatusWhere moves every row in status from to status to
func (s *Store) UpdateMissingStatusWhere(ctx context.Context, from, to string) (int64, error) {
	return s.execCount(ctx, "bulk update missing status",
		"UPDATE missing_items SET status = ? WHERE status = ?", to, from)
}

// HealMissingStatuses sets fallback on every row whose status is NULL or
// not one of valid
func (s *Store) HealMissingStatuses(ctx context.Context, valid []string, fallback string) (int64, error) {
	query, args, err := sqlx.In(
		"UPDATE missing_items SET status = ? WHERE status IS NULL OR status NOT IN (?)",
		fallback, valid)
	if err != nil {
		return 0, fmt.Errorf("failed to build heal query: %w", err)
	}
	return s.execCount(ctx, "heal missing status", query, args...)
}

// HasCorruptedMissingStatus reports whether any row has a NULL status or
// one outside valid
func (s *Store) HasCorruptedMissingStatus(ctx context.Context, valid []string) (bool, error) {
	query, args, err := sqlx.In(
		"SELECT id FROM missing_items WHERE status IS NULL OR status NOT IN (?) LIMIT 1", valid)
	if err != nil {
		return false, fmt.Errorf("failed to build status probe: %w", err)
	}
	return s.exists(ctx, query, args...)
}

// SetDirectDownload records the download attached to a registry row
func (s *Store) SetDirectDownload(ctx context.Context, id int64, downloadID, originalURL string) (int64, error) {
	return s.execCount(ctx, "set direct download",
		"UPDATE missing_items SET direct_download_id = ?, original_url = ? WHERE id = ?",
		downloadID, originalURL, id)
}

// ResetMissingForRedownload puts a row back to status with a fresh added_at
// and no download attached
func (s *Store) ResetMissingForRedownload(ctx context.Context, id int64, status string) (int64, error) {
	return s.execCount(ctx, "reset for redownload", `
		UPDATE missing_items
		SET status = ?, added_at = ?, direct_download_id = NULL
		WHERE id = ?
	`, status, time.Now().UTC(), id)
}

// DeleteMissingItem deletes one row
func (s *Store) DeleteMissingItem(ctx context.Context, id int64) (int64, error) {
	return s.execCount(ctx, "delete missing item", "DELETE FROM missing_items WHERE id = ?", id)
}

// DeleteAllMissingItems empties the registry
func (s *Store) DeleteAllMissingItems(ctx context.Context) (int64, error) {
	return s.execCount(ctx, "delete all missing items", "DELETE FROM missing_items")
}

// DeleteMissingByStatus deletes every row whose status is one of statuses
func (s *Store) DeleteMissingByStatus(ctx context.Context, statuses []string) (int64, error) {
	query, args, err := sqlx.In("DELETE FROM missing_items WHERE status IN (?)", statuses)
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}
	return s.execCount(ctx, "delete missing by status", query, args...)
}

// DeleteMissingContaining deletes rows whose source context contains any of
// contextFragments, or whose title, artist or source context contains any of
// textFragments. Matching is ASCII case-insensitive.
func (s *Store) DeleteMissingContaining(ctx context.Context, contextFragments, textFragments []string) (int64, error) {
	var conds []string
	var args []any
	for _, f := range contextFragments {
		conds = append(conds, `source_context LIKE ? ESCAPE '\'`)
		args = append(args, ContainsPattern(f))
	}
	for _, f := range textFragments {
		p := ContainsPattern(f)
		conds = append(conds, `title LIKE ? ESCAPE '\' OR artist LIKE ? ESCAPE '\' OR source_context LIKE ? ESCAPE '\'`)
		args = append(args, p, p, p)
	}
	if len(conds) == 0 {
		return 0, nil
	}

	return s.execCount(ctx, "delete invalid missing items",
		"DELETE FROM missing_items WHERE "+strings.Join(conds, " OR "), args...)
}

// CountMissingItems returns the number of registry rows
func (s *Store) CountMissingItems(ctx context.Context) (int64, error) {
	var count int64
	err := s.WithConn(ctx, func(q DBTX) error {
		return sqlx.GetContext(ctx, q, &count, "SELECT COUNT(*) FROM missing_items")
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count missing items: %w", err)
	}
	return count, nil
}

// CountMissingByStatus returns row counts keyed by raw status ("" for NULL)
func (s *Store) CountMissingByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int64  `db:"n"`
	}
	err := s.WithConn(ctx, func(q DBTX) error {
		rows = rows[:0]
		return sqlx.SelectContext(ctx, q, &rows,
			"SELECT COALESCE(CAST(status AS TEXT), '') AS status, COUNT(*) AS n FROM missing_items GROUP BY 1")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count missing items by status: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *Store) execCount(ctx context.Context, what, query string, args ...any) (int64, error) {
	result, err := s.ExecWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", what, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", what, err)
	}
	return n, nil
}
