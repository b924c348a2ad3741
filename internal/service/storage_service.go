package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/envelope"
	"sheetnotes/internal/logging"
	"sheetnotes/internal/priority"
	"sheetnotes/internal/repository"
)

var ErrUnauthorized = fmt.Errorf("%w: user context required", domain.ErrAuthentication)

// StorageService implements the storage collaborator: per-user note rows
// and the user registry.
type StorageService struct {
	notes  repository.NoteRepository
	users  repository.UserRepository
	loc    *time.Location
	logger logging.Logger
	now    func() time.Time
}

func NewStorageService(notes repository.NoteRepository, users repository.UserRepository, loc *time.Location, logger logging.Logger) *StorageService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &StorageService{
		notes:  notes,
		users:  users,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// List returns the user's notes only.
func (s *StorageService) List(ctx context.Context, user domain.StorageUser) ([]*domain.WireNote, error) {
	if user.UserID == "" {
		return nil, ErrUnauthorized
	}

	rows, err := s.notes.ListByUser(ctx, user.UserID)
	if err != nil {
		return nil, err
	}

	notes := make([]*domain.WireNote, 0, len(rows))
	for _, row := range rows {
		if row.UserID != user.UserID {
			continue
		}
		notes = append(notes, fromRow(row))
	}
	return notes, nil
}

func (s *StorageService) Handle(ctx context.Context, req *domain.StorageRequest) (*domain.StorageResult, error) {
	user := domain.StorageUser{UserID: req.UserID, UserEmail: req.UserEmail, UserName: req.UserName}
	if user.UserID == "" {
		return nil, ErrUnauthorized
	}

	switch req.Action {
	case domain.ActionAdd:
		return s.add(ctx, user, req.Note)
	case domain.ActionUpdate:
		return s.update(ctx, user, req.Note)
	case domain.ActionDelete:
		return s.delete(ctx, user, req.Note)
	case domain.ActionTest:
		return &domain.StorageResult{Success: true, Message: "Test successful", User: &user}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, req.Action)
	}
}

func (s *StorageService) add(ctx context.Context, user domain.StorageUser, note *domain.WireNote) (*domain.StorageResult, error) {
	if note == nil {
		return nil, fmt.Errorf("%w: note is required", domain.ErrInvalidInput)
	}

	now := s.now()
	stamp := priority.FormatTime(now)

	row := toRow(note)
	row.UserID = user.UserID
	row.UserEmail = user.UserEmail
	row.CreatedBy = user.UserID
	row.LastModified = stamp
	row.IsShared = false

	if row.NoteID == "" {
		row.NoteID = uuid.New().String()
	}
	if row.Timestamp == "" {
		row.Timestamp = stamp
	}
	if row.Title == "" {
		row.Title = DefaultTitle
	}
	if row.DueDate == "" {
		row.DueDate = DefaultDueDate(now, s.loc)
	}

	if err := s.notes.Create(ctx, row); err != nil {
		return nil, err
	}

	s.registerUser(ctx, user)

	s.logger.Info(ctx, "note added", "note_id", row.NoteID, "user_id", user.UserID)
	return &domain.StorageResult{Success: true, Message: "Note added successfully"}, nil
}

func (s *StorageService) update(ctx context.Context, user domain.StorageUser, note *domain.WireNote) (*domain.StorageResult, error) {
	existing, err := s.owned(ctx, user, note)
	if err != nil {
		return nil, err
	}

	row := toRow(note)
	row.UserID = user.UserID
	row.UserEmail = user.UserEmail
	row.LastModified = priority.FormatTime(s.now())
	if row.CreatedBy == "" {
		row.CreatedBy = existing.CreatedBy
	}
	if row.Timestamp == "" {
		row.Timestamp = existing.Timestamp
	}

	if err := s.notes.Update(ctx, row); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "note updated", "note_id", row.NoteID, "user_id", user.UserID)
	return &domain.StorageResult{Success: true, Message: "Note updated successfully"}, nil
}

func (s *StorageService) delete(ctx context.Context, user domain.StorageUser, note *domain.WireNote) (*domain.StorageResult, error) {
	if _, err := s.owned(ctx, user, note); err != nil {
		return nil, err
	}

	if err := s.notes.Delete(ctx, note.ID); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "note deleted", "note_id", note.ID, "user_id", user.UserID)
	return &domain.StorageResult{Success: true, Message: "Note deleted successfully"}, nil
}

func (s *StorageService) owned(ctx context.Context, user domain.StorageUser, note *domain.WireNote) (*domain.StoredNote, error) {
	if note == nil || note.ID == "" {
		return nil, fmt.Errorf("%w: note id is required", domain.ErrInvalidInput)
	}

	existing, err := s.notes.FindByID(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	if existing.UserID != user.UserID {
		return nil, domain.ErrOwnership
	}
	return existing, nil
}

// registerUser records first-time writers and refreshes lastLogin for known
// ones. Failures are logged; they never fail the write.
func (s *StorageService) registerUser(ctx context.Context, user domain.StorageUser) {
	if user.UserID == "" || user.UserEmail == "" {
		s.logger.Warn(ctx, "cannot register user without id and email", "user_id", user.UserID)
		return
	}

	now := s.now().UTC()

	record, err := s.users.FindByID(ctx, user.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		record = &domain.UserRecord{
			UserID:    user.UserID,
			Email:     user.UserEmail,
			Name:      user.UserName,
			CreatedAt: now,
			IsActive:  true,
		}
	case err != nil:
		s.logger.Error(ctx, "failed to look up user", "user_id", user.UserID, "error", err)
		return
	}
	record.LastLogin = now

	if err := s.users.Save(ctx, record); err != nil {
		s.logger.Error(ctx, "failed to register user", "user_id", user.UserID, "error", err)
	}
}

// toRow stores sensitive fields in their string form.
func toRow(w *domain.WireNote) *domain.StoredNote {
	return &domain.StoredNote{
		NoteID:           w.ID,
		Timestamp:        w.Timestamp,
		Title:            w.Title.Raw(),
		Description:      w.Description.Raw(),
		Tags:             w.Tags,
		Comments:         w.Comments.Raw(),
		System:           w.System,
		Done:             w.Done,
		DateDone:         w.DateDone,
		DateUndone:       w.DateUndone,
		Priority:         w.Priority,
		UserID:           w.UserID,
		UserEmail:        w.UserEmail,
		CreatedBy:        w.CreatedBy,
		LastModified:     w.LastModified,
		IsShared:         w.IsShared,
		DueDate:          w.DueDate,
		IsOverdue:        w.IsOverdue,
		OverdueCheckedAt: w.OverdueCheckedAt,
	}
}

func fromRow(r *domain.StoredNote) *domain.WireNote {
	return &domain.WireNote{
		ID:               r.NoteID,
		Title:            envelope.FromStored(r.Title),
		Description:      envelope.FromStored(r.Description),
		Comments:         envelope.FromStored(r.Comments),
		Tags:             r.Tags,
		System:           r.System,
		Done:             r.Done,
		Priority:         r.Priority,
		Timestamp:        r.Timestamp,
		DateDone:         r.DateDone,
		DateUndone:       r.DateUndone,
		DueDate:          r.DueDate,
		IsOverdue:        r.IsOverdue,
		OverdueCheckedAt: r.OverdueCheckedAt,
		UserID:           r.UserID,
		UserEmail:        r.UserEmail,
		CreatedBy:        r.CreatedBy,
		LastModified:     r.LastModified,
		IsShared:         r.IsShared,
	}
}
