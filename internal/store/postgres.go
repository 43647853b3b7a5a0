package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresStore reads notes and their owners from the record source. It
// never writes notes; the record source owns their lifecycle.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectNotes = `
	SELECT n.id, n.title, coalesce(n.description, ''), coalesce(n.subject, ''),
		coalesce(n.file_url, ''), coalesce(n.author_id, ''),
		coalesce(to_json(n.tags), '[]'::json)::text,
		n.downloads, n.rating_avg, n.is_public, coalesce(n.college_id, ''),
		n.created_at, n.updated_at,
		p.id, p.full_name, p.role
	FROM notes n
	LEFT JOIN profiles p ON p.id = n.author_id`

// ListPublicNotes returns up to limit public notes with an id greater than
// afterID, ordered by id. Pass the last id of a page to fetch the next one.
func (s *PostgresStore) ListPublicNotes(ctx context.Context, afterID string, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, selectNotes+`
		WHERE n.is_public AND n.id > $1
		ORDER BY n.id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list public notes: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0, limit)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// GetNote loads a single note regardless of visibility.
func (s *PostgresStore) GetNote(ctx context.Context, id string) (Note, error) {
	row := s.db.QueryRowContext(ctx, selectNotes+` WHERE n.id = $1`, id)
	return scanNote(row)
}

// GetAuthor resolves an owner summary. Returns sql.ErrNoRows when the
// profile does not exist.
func (s *PostgresStore) GetAuthor(ctx context.Context, id string) (*Author, error) {
	var (
		author   Author
		fullName sql.NullString
		role     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, full_name, role FROM profiles WHERE id = $1`, id).
		Scan(&author.ID, &fullName, &role)
	if err != nil {
		return nil, err
	}
	author.FullName = fullName.String
	author.Role = role.String
	return &author, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (Note, error) {
	var (
		note       Note
		tagsJSON   string
		createdAt  time.Time
		updatedAt  sql.NullTime
		authorID   sql.NullString
		authorName sql.NullString
		authorRole sql.NullString
	)
	if err := row.Scan(
		&note.ID, &note.Title, &note.Description, &note.Subject,
		&note.FileURL, &note.AuthorID, &tagsJSON,
		&note.Downloads, &note.RatingAvg, &note.IsPublic, &note.CollegeID,
		&createdAt, &updatedAt,
		&authorID, &authorName, &authorRole,
	); err != nil {
		return Note{}, fmt.Errorf("scan note: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &note.Tags); err != nil {
		return Note{}, fmt.Errorf("decode tags for note %s: %w", note.ID, err)
	}
	note.CreatedAt = NewTimestamp(createdAt)
	if updatedAt.Valid {
		note.UpdatedAt = NewTimestamp(updatedAt.Time)
	}
	if authorID.Valid && strings.TrimSpace(authorID.String) != "" {
		note.Author = &Author{ID: authorID.String, FullName: authorName.String, Role: authorRole.String}
	}
	return note, nil
}
