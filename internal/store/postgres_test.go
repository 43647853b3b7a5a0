package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	return NewPostgresStore(openTestDB(t)), context.Background()
}

func TestListPublicNotesPagesByID(t *testing.T) {
	s, ctx := openTestStore(t)

	_, err := s.DB().ExecContext(ctx, `
		INSERT INTO profiles (id, full_name) VALUES ('u1', 'Ada Lovelace');
		INSERT INTO notes (id, title, subject, author_id, tags, is_public) VALUES
			('n1', 'Intro to X', 'Math', 'u1', '{algebra,intro}', true),
			('n2', 'Private notes', 'Math', 'u1', '{}', false),
			('n3', 'Orphan', 'Bio', NULL, '{}', true),
			('n4', 'Waves', 'Physics', 'u1', '{}', true);
	`)
	require.NoError(t, err)

	first, err := s.ListPublicNotes(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "n1", first[0].ID)
	assert.Equal(t, "n3", first[1].ID)
	assert.Equal(t, []string{"algebra", "intro"}, first[0].Tags)
	require.NotNil(t, first[0].Author)
	assert.Equal(t, "Ada Lovelace", first[0].Author.FullName)
	assert.Nil(t, first[1].Author)
	assert.Empty(t, first[1].Tags)

	second, err := s.ListPublicNotes(ctx, first[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "n4", second[0].ID)

	rest, err := s.ListPublicNotes(ctx, "n4", 2)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestGetAuthorMissingProfile(t *testing.T) {
	s, ctx := openTestStore(t)

	_, err := s.GetAuthor(ctx, "nobody")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	_, err = s.GetNote(ctx, "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
