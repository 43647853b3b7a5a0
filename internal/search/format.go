package search

import (
	"strings"

	"campusconnect/api/internal/store"
)

// AnonymousAuthor is indexed when a note's owner cannot be resolved.
const AnonymousAuthor = "Anonymous"

// FormatNote projects a note onto its search document. It is total and
// deterministic: missing optional fields take their defaults and the result
// shares no memory with note.
func FormatNote(note store.Note) Document {
	tags := make([]string, len(note.Tags))
	copy(tags, note.Tags)

	var createdAt int64
	if !note.CreatedAt.IsZero() {
		createdAt = note.CreatedAt.UnixMilli()
	}

	return Document{
		ID:          note.ID,
		Title:       note.Title,
		Description: note.Description,
		Subject:     note.Subject,
		AuthorID:    note.AuthorID,
		AuthorName:  authorName(note.Author),
		Tags:        tags,
		Downloads:   note.Downloads,
		RatingAvg:   note.RatingAvg,
		IsPublic:    note.IsPublic,
		FileURL:     note.FileURL,
		CreatedAt:   createdAt,
	}
}

func authorName(author *store.Author) string {
	if author == nil || strings.TrimSpace(author.FullName) == "" {
		return AnonymousAuthor
	}
	return author.FullName
}
