package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"campusconnect/api/internal/store"
)

const defaultSyncPageSize = 500

// Syncer keeps the notes index aligned with the record source, either by
// a full re-push or by applying single change events.
type Syncer struct {
	index    Index
	source   NoteSource
	owners   OwnerResolver
	guard    VersionGuard
	pageSize int
}

// NewSyncer wires a sync engine. owners and guard are optional.
func NewSyncer(index Index, source NoteSource, owners OwnerResolver, guard VersionGuard, pageSize int) *Syncer {
	if pageSize <= 0 {
		pageSize = defaultSyncPageSize
	}
	return &Syncer{
		index:    index,
		source:   source,
		owners:   owners,
		guard:    guard,
		pageSize: pageSize,
	}
}

// SyncAll reads every public note and pushes them in one upsert. Documents
// absent from the source are not removed from the index.
func (s *Syncer) SyncAll(ctx context.Context) (SyncResult, error) {
	var (
		docs    []Document
		afterID string
	)
	for {
		notes, err := s.source.ListPublicNotes(ctx, afterID, s.pageSize)
		if err != nil {
			return SyncResult{}, fmt.Errorf("read public notes: %w", err)
		}
		for _, n := range notes {
			docs = append(docs, FormatNote(n))
		}
		if len(notes) < s.pageSize {
			break
		}
		afterID = notes[len(notes)-1].ID
	}

	if len(docs) == 0 {
		log.Println("search: full sync found no public notes")
		return SyncResult{Synced: 0, Total: 0}, nil
	}

	taskUID, err := s.index.Upsert(ctx, docs)
	if err != nil {
		return SyncResult{}, fmt.Errorf("upsert %d notes: %w", len(docs), err)
	}
	log.Printf("search: full sync enqueued %d notes as task %d", len(docs), taskUID)
	return SyncResult{Synced: len(docs), Total: len(docs), TaskUID: &taskUID}, nil
}

// ApplyEvent mirrors one record change into the index. Private records are
// removed rather than indexed. Stale events return ErrStaleEvent and leave
// the index untouched.
func (s *Syncer) ApplyEvent(ctx context.Context, ev ChangeEvent) error {
	switch ev.Type {
	case EventInsert, EventUpdate:
		if ev.Record == nil || strings.TrimSpace(ev.Record.ID) == "" {
			return fmt.Errorf("%w: %s without record", ErrInvalidEvent, ev.Type)
		}
		note := *ev.Record
		if !note.IsPublic {
			return s.remove(ctx, note, false)
		}
		return s.upsert(ctx, note)
	case EventDelete:
		if ev.OldRecord == nil || strings.TrimSpace(ev.OldRecord.ID) == "" {
			return fmt.Errorf("%w: DELETE without old_record", ErrInvalidEvent)
		}
		return s.remove(ctx, *ev.OldRecord, true)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
	}
}

func (s *Syncer) upsert(ctx context.Context, note store.Note) error {
	release, err := s.claim(ctx, note, false)
	if err != nil {
		return err
	}
	if note.Author == nil && note.AuthorID != "" && s.owners != nil {
		author, err := s.owners.GetAuthor(ctx, note.AuthorID)
		if err != nil {
			log.Printf("search: resolve owner %s for note %s: %v", note.AuthorID, note.ID, err)
		} else {
			note.Author = author
		}
	}
	if _, err := s.index.Upsert(ctx, []Document{FormatNote(note)}); err != nil {
		release(ctx)
		return fmt.Errorf("upsert note %s: %w", note.ID, err)
	}
	return nil
}

// remove deletes the document. tombstone is set for record deletions; a
// record hidden by an update is versioned like any other update so it can
// be published again at the same version.
func (s *Syncer) remove(ctx context.Context, note store.Note, tombstone bool) error {
	release, err := s.claim(ctx, note, tombstone)
	if err != nil {
		return err
	}
	if _, err := s.index.Delete(ctx, note.ID); err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil
		}
		release(ctx)
		return fmt.Errorf("delete note %s: %w", note.ID, err)
	}
	return nil
}

// claim advances the record's version through the guard. The returned
// release undoes the claim after a failed index write.
func (s *Syncer) claim(ctx context.Context, note store.Note, tombstone bool) (func(context.Context), error) {
	version := note.Version()
	if s.guard == nil || version == 0 {
		return func(context.Context) {}, nil
	}
	previous, applied, err := s.guard.Advance(ctx, note.ID, version, tombstone)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: note %s at %d, already at %s", ErrStaleEvent, note.ID, version, previous)
	}
	return func(ctx context.Context) {
		if err := s.guard.Rollback(context.WithoutCancel(ctx), note.ID, version, tombstone, previous); err != nil {
			log.Printf("search: %v", err)
		}
	}, nil
}
