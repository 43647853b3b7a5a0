package search

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusconnect/api/internal/store"
)

func TestFormatNoteDefaults(t *testing.T) {
	doc := FormatNote(store.Note{ID: "n1", Title: "Intro to X", IsPublic: true})

	assert.Equal(t, "n1", doc.ID)
	assert.Equal(t, AnonymousAuthor, doc.AuthorName)
	assert.NotNil(t, doc.Tags)
	assert.Empty(t, doc.Tags)
	assert.Zero(t, doc.Downloads)
	assert.Zero(t, doc.RatingAvg)
	assert.Zero(t, doc.CreatedAt)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tags":[]`)
	assert.Contains(t, string(data), `"author_name":"Anonymous"`)
}

func TestFormatNoteBlankAuthorName(t *testing.T) {
	doc := FormatNote(store.Note{ID: "n1", Author: &store.Author{ID: "u1", FullName: "   "}})
	assert.Equal(t, AnonymousAuthor, doc.AuthorName)
}

func TestFormatNoteFlattensFields(t *testing.T) {
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	note := store.Note{
		ID:          "n1",
		Title:       "Thermodynamics",
		Description: "Laws and cycles",
		Subject:     "Physics",
		AuthorID:    "u1",
		Author:      &store.Author{ID: "u1", FullName: "Grace Hopper"},
		Tags:        []string{"heat", "entropy"},
		Downloads:   12,
		RatingAvg:   4.25,
		IsPublic:    true,
		FileURL:     "https://files.example/n1.pdf",
		CreatedAt:   store.NewTimestamp(created),
	}

	doc := FormatNote(note)

	assert.Equal(t, Document{
		ID:          "n1",
		Title:       "Thermodynamics",
		Description: "Laws and cycles",
		Subject:     "Physics",
		AuthorID:    "u1",
		AuthorName:  "Grace Hopper",
		Tags:        []string{"heat", "entropy"},
		Downloads:   12,
		RatingAvg:   4.25,
		IsPublic:    true,
		FileURL:     "https://files.example/n1.pdf",
		CreatedAt:   created.UnixMilli(),
	}, doc)
}

func TestFormatNoteDeterministic(t *testing.T) {
	note := store.Note{
		ID:        "n1",
		Title:     "Intro",
		Tags:      []string{"a", "b"},
		CreatedAt: store.NewTimestamp(time.Unix(1700000000, 0)),
	}

	first, err := json.Marshal(FormatNote(note))
	require.NoError(t, err)
	second, err := json.Marshal(FormatNote(note))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, FormatNote(note), FormatNote(note))
}

func TestFormatNoteDoesNotAliasTags(t *testing.T) {
	note := store.Note{ID: "n1", Tags: []string{"a"}}
	doc := FormatNote(note)
	doc.Tags[0] = "mutated"
	assert.Equal(t, "a", note.Tags[0])
}
