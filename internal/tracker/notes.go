package tracker

import (
	"context"
	"fmt"
	"slices"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/localstore"
	"github.com/starford/tally/internal/models"
)

// NoteInput is the payload for SaveNote. An empty ID creates a note.
type NoteInput struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Notes returns every note, most recently changed first.
func (s *Service) Notes(_ context.Context) []models.Note {
	notes := nonNilSlice(localstore.Get(s.store, models.KeyNotes, []models.Note(nil)))
	slices.SortStableFunc(notes, func(a, b models.Note) int {
		return b.LastChange().Compare(a.LastChange())
	})
	return notes
}

// SaveNote creates a note, or edits the note with in.ID. A note needs a
// title or some content.
func (s *Service) SaveNote(_ context.Context, in NoteInput) (models.Note, error) {
	in.Title = cleanText(in.Title)
	in.Content = cleanText(in.Content)
	if in.Title == "" && in.Content == "" {
		return models.Note{}, fmt.Errorf("%w: title or content is required", apperr.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	notes := localstore.Get(s.store, models.KeyNotes, []models.Note(nil))
	ts := s.now().UTC()

	var out models.Note
	if in.ID == "" {
		out = models.Note{ID: newID("n"), Title: in.Title, Content: in.Content, Created: ts, Updated: ts}
		notes = append(notes, out)
	} else {
		i := slices.IndexFunc(notes, func(n models.Note) bool { return n.ID == in.ID })
		if i < 0 {
			return models.Note{}, apperr.ErrNotFound
		}
		notes[i].Title = in.Title
		notes[i].Content = in.Content
		notes[i].Updated = ts
		out = notes[i]
	}

	if err := s.store.Set(models.KeyNotes, notes); err != nil {
		return models.Note{}, fmt.Errorf("tracker: save note: %w", err)
	}
	return out, nil
}

// Note returns one note by id.
func (s *Service) Note(ctx context.Context, id string) (models.Note, error) {
	for _, n := range s.Notes(ctx) {
		if n.ID == id {
			return n, nil
		}
	}
	return models.Note{}, apperr.ErrNotFound
}

// DeleteNote removes a note.
func (s *Service) DeleteNote(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes := localstore.Get(s.store, models.KeyNotes, []models.Note(nil))
	i := slices.IndexFunc(notes, func(n models.Note) bool { return n.ID == id })
	if i < 0 {
		return apperr.ErrNotFound
	}
	if err := s.store.Set(models.KeyNotes, slices.Delete(notes, i, i+1)); err != nil {
		return fmt.Errorf("tracker: delete note: %w", err)
	}
	return nil
}
