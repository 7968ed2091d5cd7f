package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrThreadNotFound = errors.New("thread not found")

// CreateThread inserts a thread. Zero timestamps are set to now.
func (d *Database) CreateThread(t *Thread) error {
	now := time.Now().UnixMilli()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = t.CreatedAt
	}

	_, err := d.db.Exec(`
		INSERT INTO threads (id, title, parent_thread_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Title, nullString(t.ParentThreadID), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create thread %s: %w", t.ID, err)
	}
	return nil
}

// EnsureThread creates the thread if it does not exist yet
func (d *Database) EnsureThread(id, title string) (*Thread, error) {
	t, err := d.GetThread(id)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrThreadNotFound) {
		return nil, err
	}

	t = &Thread{ID: id, Title: title}
	if err := d.CreateThread(t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetThread retrieves a thread by ID
func (d *Database) GetThread(id string) (*Thread, error) {
	row := d.db.QueryRow(`
		SELECT id, title, parent_thread_id, created_at, updated_at
		FROM threads WHERE id = ?`, id)

	t, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrThreadNotFound)
	}
	return t, err
}

// ListThreads returns all threads, most recently updated first
func (d *Database) ListThreads() ([]*Thread, error) {
	rows, err := d.db.Query(`
		SELECT id, title, parent_thread_id, created_at, updated_at
		FROM threads ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// RenameThread updates the title of a thread
func (d *Database) RenameThread(id, title string) error {
	return d.updateThread(`UPDATE threads SET title = ?, updated_at = ? WHERE id = ?`,
		id, title, time.Now().UnixMilli(), id)
}

// TouchThread bumps updated_at
func (d *Database) TouchThread(id string) error {
	return d.updateThread(`UPDATE threads SET updated_at = ? WHERE id = ?`,
		id, time.Now().UnixMilli(), id)
}

func (d *Database) updateThread(query, id string, args ...any) error {
	res, err := d.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrThreadNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThread(s scanner) (*Thread, error) {
	var (
		t      Thread
		parent sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Title, &parent, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ParentThreadID = parent.String
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
