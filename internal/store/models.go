package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Author is the owner summary joined onto a note. A nil *Author means the
// owner could not be resolved.
type Author struct {
	ID       string `json:"id,omitempty"`
	FullName string `json:"full_name"`
	Role     string `json:"role,omitempty"`
}

// Note is a shareable document row as held by the record source. JSON tags
// match the table's column names so webhook rows decode directly.
type Note struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Subject     string    `json:"subject"`
	FileURL     string    `json:"file_url"`
	AuthorID    string    `json:"author_id"`
	Author      *Author   `json:"author,omitempty"`
	Tags        []string  `json:"tags"`
	Downloads   int64     `json:"downloads"`
	RatingAvg   float64   `json:"rating_avg"`
	IsPublic    bool      `json:"is_public"`
	CollegeID   string    `json:"college_id,omitempty"`
	CreatedAt   Timestamp `json:"created_at"`
	UpdatedAt   Timestamp `json:"updated_at"`
}

// Version orders successive states of the same note. It is the update time
// when known, otherwise the creation time, in epoch milliseconds.
func (n Note) Version() int64 {
	if !n.UpdatedAt.IsZero() {
		return n.UpdatedAt.UnixMilli()
	}
	if !n.CreatedAt.IsZero() {
		return n.CreatedAt.UnixMilli()
	}
	return 0
}

// Timestamp decodes the timestamp encodings the record source emits:
// RFC 3339 from the REST layer and the PostgreSQL text form from database
// webhooks. null and "" decode to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func ParseTimestamp(value string) (Timestamp, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return Timestamp{Time: parsed.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", value)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
