package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/envelope"
	"sheetnotes/internal/logging"
	"sheetnotes/internal/middleware"
	"sheetnotes/internal/notestore"
	"sheetnotes/internal/service"
	"sheetnotes/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// RawStore relays requests to the storage collaborator, sealing and
// opening the sensitive note members with the user's cipher.
type RawStore interface {
	ListRaw(ctx context.Context, user *domain.User, cipher notestore.Cipher) ([]byte, int, error)
	PostRaw(ctx context.Context, user *domain.User, payload map[string]any, cipher notestore.Cipher) ([]byte, int, error)
	Test(ctx context.Context, user *domain.User) (*domain.StorageResult, error)
}

// storageTestUser is the fixed identity of the connectivity check.
var storageTestUser = &domain.User{Subject: "test-user", Email: "test@example.com", Name: "Test User"}

type NoteHandler struct {
	boards   *service.BoardService
	store    RawStore
	validate *validator.Validate
	logger   logging.Logger
}

func NewNoteHandler(boards *service.BoardService, store RawStore, logger logging.Logger) *NoteHandler {
	return &NoteHandler{
		boards:   boards,
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}
}

// NoteResult is returned by every mutating note route.
type NoteResult struct {
	Note     *domain.Note          `json:"note,omitempty"`
	Board    *service.Snapshot     `json:"board"`
	Failures []service.PushFailure `json:"failures"`
}

func result(b *service.Board, n *domain.Note) *NoteResult {
	failures := b.Failures()
	if failures == nil {
		failures = []service.PushFailure{}
	}
	return &NoteResult{Note: n, Board: b.Snapshot(), Failures: failures}
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	var snap *service.Snapshot
	err := h.boards.With(r.Context(), middleware.GetUser(r), func(b *service.Board) error {
		b.Filter(r.URL.Query().Get("tags"))
		snap = b.Snapshot()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, snap)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	var res *NoteResult
	err := h.boards.With(r.Context(), middleware.GetUser(r), func(b *service.Board) error {
		n, err := b.Add(r.Context(), &req)
		if err != nil {
			return err
		}
		res = result(b, n)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	response.Created(w, res)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	var req domain.UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	h.mutate(w, r, func(b *service.Board) (*domain.Note, error) {
		return b.Edit(r.Context(), noteID, &req)
	})
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	h.mutate(w, r, func(b *service.Board) (*domain.Note, error) {
		return nil, b.Delete(r.Context(), noteID)
	})
}

func (h *NoteHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	h.mutate(w, r, func(b *service.Board) (*domain.Note, error) {
		return b.Toggle(r.Context(), noteID)
	})
}

func (h *NoteHandler) Move(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	var req domain.MoveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, "direction must be up or down")
		return
	}

	h.mutate(w, r, func(b *service.Board) (*domain.Note, error) {
		return nil, b.Move(r.Context(), noteID, req.Direction)
	})
}

func (h *NoteHandler) mutate(w http.ResponseWriter, r *http.Request, op func(*service.Board) (*domain.Note, error)) {
	var res *NoteResult
	err := h.boards.With(r.Context(), middleware.GetUser(r), func(b *service.Board) error {
		n, err := op(b)
		if err != nil {
			return err
		}
		res = result(b, n)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, res)
}

// ListRaw relays the collaborator's note list for the session user with
// the sensitive members opened.
func (h *NoteHandler) ListRaw(w http.ResponseWriter, r *http.Request) {
	var body []byte
	var status int
	err := h.boards.WithCipher(middleware.GetUser(r), func(c notestore.Cipher) error {
		var err error
		body, status, err = h.store.ListRaw(r.Context(), middleware.GetUser(r), c)
		return err
	})
	if errors.Is(err, domain.ErrAuthentication) {
		writeError(w, err)
		return
	}
	if err != nil || status < 200 || status > 299 {
		h.logger.Error(r.Context(), "failed to fetch notes", "status", status, "error", err)
		response.InternalError(w, "Failed to fetch notes")
		return
	}

	response.Raw(w, http.StatusOK, body)
}

// PostRaw relays a collaborator request with the session user's context
// injected and the note's sensitive members sealed.
func (h *NoteHandler) PostRaw(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	var body []byte
	var status int
	err := h.boards.WithCipher(middleware.GetUser(r), func(c notestore.Cipher) error {
		var err error
		body, status, err = h.store.PostRaw(r.Context(), middleware.GetUser(r), payload, c)
		return err
	})
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		writeError(w, err)
		return
	case errors.Is(err, envelope.ErrEncryption):
		h.logger.Error(r.Context(), "failed to seal note", "error", err)
		response.InternalError(w, "Failed to encrypt note")
		return
	case err != nil || status < 200 || status > 299:
		h.logger.Error(r.Context(), "failed to update note", "status", status, "error", err)
		response.InternalError(w, "Failed to update note")
		return
	}

	response.Raw(w, http.StatusOK, body)
}

// TestStorage sends a test action to the collaborator as a fixed test user.
func (h *NoteHandler) TestStorage(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.Test(r.Context(), storageTestUser)
	if err != nil {
		h.logger.Warn(r.Context(), "storage test failed", "error", err)
		writeError(w, err)
		return
	}

	response.Success(w, res)
}
