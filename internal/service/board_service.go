package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/envelope"
	"sheetnotes/internal/logging"
	"sheetnotes/internal/notestore"
)

const (
	DefaultPushConcurrency = 8
	DefaultOverdueInterval = time.Hour
)

// NoteStore is the part of the note store client the board uses.
type NoteStore interface {
	List(ctx context.Context, user *domain.User, cipher notestore.Cipher) ([]*domain.Note, error)
	Push(ctx context.Context, user *domain.User, action string, n *domain.Note, cipher notestore.Cipher) (*domain.StorageResult, error)
	Delete(ctx context.Context, user *domain.User, id string) (*domain.StorageResult, error)
}

// Notifier is told when a user's notes changed.
type Notifier interface {
	NotifyNotesChanged(userID, reason string)
}

type BoardConfig struct {
	Envelope        envelope.Params
	Location        *time.Location
	OverdueInterval time.Duration
	PushConcurrency int
}

// BoardService opens boards for authenticated users.
type BoardService struct {
	store    NoteStore
	cfg      BoardConfig
	notifier Notifier
	logger   logging.Logger
	now      func() time.Time
}

func NewBoardService(store NoteStore, cfg BoardConfig, notifier Notifier, logger logging.Logger) *BoardService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.OverdueInterval <= 0 {
		cfg.OverdueInterval = DefaultOverdueInterval
	}
	if cfg.PushConcurrency <= 0 {
		cfg.PushConcurrency = DefaultPushConcurrency
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &BoardService{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Open derives the user's key and loads their notes. The caller must Close
// the board to purge the key.
func (s *BoardService) Open(ctx context.Context, user *domain.User) (*Board, error) {
	if user == nil || user.Subject == "" {
		return nil, fmt.Errorf("%w: no session user", domain.ErrAuthentication)
	}

	env, err := envelope.New(user.Subject, s.cfg.Envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	b := newBoard(s, user, env)
	if err := b.Load(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// With opens a board, runs fn and closes the board.
func (s *BoardService) With(ctx context.Context, user *domain.User, fn func(*Board) error) error {
	b, err := s.Open(ctx, user)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(b)
}

// WithCipher derives the user's key without loading a board, runs fn and
// purges the key.
func (s *BoardService) WithCipher(user *domain.User, fn func(notestore.Cipher) error) error {
	if user == nil || user.Subject == "" {
		return fmt.Errorf("%w: no session user", domain.ErrAuthentication)
	}

	env, err := envelope.New(user.Subject, s.cfg.Envelope)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	defer env.Clear()

	return fn(env)
}

func (s *BoardService) notify(userID, reason string) {
	if s.notifier != nil {
		s.notifier.NotifyNotesChanged(userID, reason)
	}
}

// PushFailure is one note that could not be persisted.
type PushFailure struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func pushFailure(id string, err error) PushFailure {
	msg := err.Error()
	var se *domain.StorageError
	if errors.As(err, &se) && se.Message != "" {
		msg = se.Message
	}
	return PushFailure{ID: id, Message: msg, Err: err}
}
