package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sheetnotes/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const noteDocType = "note"

type NoteRepository interface {
	Create(ctx context.Context, note *domain.StoredNote) error
	FindByID(ctx context.Context, id string) (*domain.StoredNote, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.StoredNote, error)
	Update(ctx context.Context, note *domain.StoredNote) error
	Delete(ctx context.Context, id string) error
}

type noteRepository struct {
	client *kivik.Client
	dbName string
}

func NewNoteRepository(client *kivik.Client, dbName string) NoteRepository {
	return &noteRepository{
		client: client,
		dbName: dbName,
	}
}

func noteDocID(id string) string {
	return fmt.Sprintf("note:%s", id)
}

func (r *noteRepository) Create(ctx context.Context, note *domain.StoredNote) error {
	db := r.client.DB(r.dbName)

	note.ID = noteDocID(note.NoteID)
	note.Rev = ""
	note.Type = noteDocType
	note.UpdatedAt = time.Now()

	rev, err := db.Put(ctx, note.ID, note)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	note.Rev = rev

	return nil
}

func (r *noteRepository) FindByID(ctx context.Context, id string) (*domain.StoredNote, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, noteDocID(id))

	var note domain.StoredNote
	if err := row.ScanDoc(&note); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}

	return &note, nil
}

func (r *noteRepository) ListByUser(ctx context.Context, userID string) ([]*domain.StoredNote, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type":   noteDocType,
			"userId": userID,
		},
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*domain.StoredNote
	for rows.Next() {
		var note domain.StoredNote
		if err := rows.ScanDoc(&note); err != nil {
			continue
		}
		notes = append(notes, &note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	return notes, nil
}

// Update replaces the stored document, keeping its revision.
func (r *noteRepository) Update(ctx context.Context, note *domain.StoredNote) error {
	db := r.client.DB(r.dbName)
	docID := noteDocID(note.NoteID)

	rev, err := db.GetRev(ctx, docID)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to fetch existing note for update: %w", err)
	}

	note.ID = docID
	note.Rev = rev
	note.Type = noteDocType
	note.UpdatedAt = time.Now()

	newRev, err := db.Put(ctx, docID, note)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	note.Rev = newRev

	return nil
}

func (r *noteRepository) Delete(ctx context.Context, id string) error {
	db := r.client.DB(r.dbName)
	docID := noteDocID(id)

	rev, err := db.GetRev(ctx, docID)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return domain.ErrNotFound
		}
		return err
	}

	if _, err := db.Delete(ctx, docID, rev); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}

	return nil
}
