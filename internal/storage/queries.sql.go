package storage

import (
	"context"
	"database/sql"
)

// Statements mirror queries/queries.sql; keep both in step.

const createEntry = `-- name: CreateEntry :exec
INSERT INTO entries (id, entry_date, month_key, title, distance, notes, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type CreateEntryParams struct {
	ID        string
	EntryDate string
	MonthKey  string
	Title     string
	Distance  string
	Notes     sql.NullString
	CreatedAt string
}

func (q *Queries) CreateEntry(ctx context.Context, arg CreateEntryParams) error {
	_, err := q.db.ExecContext(ctx, createEntry,
		arg.ID,
		arg.EntryDate,
		arg.MonthKey,
		arg.Title,
		arg.Distance,
		arg.Notes,
		arg.CreatedAt,
	)
	return err
}

const deleteEntry = `-- name: DeleteEntry :execrows
DELETE FROM entries
WHERE id = ?
`

func (q *Queries) DeleteEntry(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteEntry, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getEntry = `-- name: GetEntry :one
SELECT id, entry_date, month_key, title, distance, notes, created_at
FROM entries
WHERE id = ?
`

func (q *Queries) GetEntry(ctx context.Context, id string) (Entry, error) {
	row := q.db.QueryRowContext(ctx, getEntry, id)
	var i Entry
	err := row.Scan(
		&i.ID,
		&i.EntryDate,
		&i.MonthKey,
		&i.Title,
		&i.Distance,
		&i.Notes,
		&i.CreatedAt,
	)
	return i, err
}

const getSetting = `-- name: GetSetting :one
SELECT value FROM invoice_settings
WHERE key = ?
`

func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	row := q.db.QueryRowContext(ctx, getSetting, key)
	var value string
	err := row.Scan(&value)
	return value, err
}

const listAllEntries = `-- name: ListAllEntries :many
SELECT id, entry_date, month_key, title, distance, notes, created_at
FROM entries
ORDER BY entry_date DESC, id DESC
`

func (q *Queries) ListAllEntries(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, listAllEntries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Entry
	for rows.Next() {
		var i Entry
		if err := rows.Scan(
			&i.ID,
			&i.EntryDate,
			&i.MonthKey,
			&i.Title,
			&i.Distance,
			&i.Notes,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteArchive = `-- name: DeleteArchive :exec
DELETE FROM archives
WHERE month_key = ?
`

func (q *Queries) DeleteArchive(ctx context.Context, monthKey string) error {
	_, err := q.db.ExecContext(ctx, deleteArchive, monthKey)
	return err
}

const listArchives = `-- name: ListArchives :many
SELECT month_key, file_path, archived_at
FROM archives
ORDER BY month_key DESC
`

func (q *Queries) ListArchives(ctx context.Context) ([]Archive, error) {
	rows, err := q.db.QueryContext(ctx, listArchives)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Archive
	for rows.Next() {
		var i Archive
		if err := rows.Scan(&i.MonthKey, &i.FilePath, &i.ArchivedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listEntriesByMonth = `-- name: ListEntriesByMonth :many
SELECT id, entry_date, month_key, title, distance, notes, created_at
FROM entries
WHERE month_key = ?
ORDER BY entry_date DESC, id DESC
`

func (q *Queries) ListEntriesByMonth(ctx context.Context, monthKey string) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, listEntriesByMonth, monthKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Entry
	for rows.Next() {
		var i Entry
		if err := rows.Scan(
			&i.ID,
			&i.EntryDate,
			&i.MonthKey,
			&i.Title,
			&i.Distance,
			&i.Notes,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listMonths = `-- name: ListMonths :many
SELECT DISTINCT month_key
FROM entries
ORDER BY month_key DESC
`

func (q *Queries) ListMonths(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listMonths)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var month_key string
		if err := rows.Scan(&month_key); err != nil {
			return nil, err
		}
		items = append(items, month_key)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertArchive = `-- name: UpsertArchive :exec
INSERT INTO archives (month_key, file_path, archived_at)
VALUES (?, ?, ?)
ON CONFLICT(month_key) DO UPDATE SET file_path = excluded.file_path, archived_at = excluded.archived_at
`

type UpsertArchiveParams struct {
	MonthKey   string
	FilePath   string
	ArchivedAt string
}

func (q *Queries) UpsertArchive(ctx context.Context, arg UpsertArchiveParams) error {
	_, err := q.db.ExecContext(ctx, upsertArchive, arg.MonthKey, arg.FilePath, arg.ArchivedAt)
	return err
}

const upsertSetting = `-- name: UpsertSetting :exec
INSERT INTO invoice_settings (key, value)
VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`

type UpsertSettingParams struct {
	Key   string
	Value string
}

func (q *Queries) UpsertSetting(ctx context.Context, arg UpsertSettingParams) error {
	_, err := q.db.ExecContext(ctx, upsertSetting, arg.Key, arg.Value)
	return err
}
