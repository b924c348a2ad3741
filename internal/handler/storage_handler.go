package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/logging"
	"sheetnotes/internal/priority"
	"sheetnotes/internal/service"
	"sheetnotes/pkg/response"

	"github.com/go-playground/validator/v10"
)

const maxStorageBody = 1 << 20

// StorageHandler serves the collaborator contract: GET lists a user's notes,
// POST runs an action. Bodies are JSON sent as text/plain.
type StorageHandler struct {
	service  *service.StorageService
	validate *validator.Validate
	logger   logging.Logger
	now      func() time.Time
}

func NewStorageHandler(svc *service.StorageService, logger logging.Logger) *StorageHandler {
	return &StorageHandler{
		service:  svc,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

func (h *StorageHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := domain.StorageUser{
		UserID:    q.Get(domain.ParamUserID),
		UserEmail: q.Get(domain.ParamUserEmail),
		UserName:  q.Get(domain.ParamUserName),
	}

	notes, err := h.service.List(r.Context(), user)
	if err != nil {
		h.fail(w, r, "list", err)
		return
	}

	response.Plain(w, http.StatusOK, notes)
}

func (h *StorageHandler) Post(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxStorageBody))
	if err != nil {
		h.fail(w, r, "read", domain.ErrInvalidInput)
		return
	}

	var req domain.StorageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.fail(w, r, "decode", domain.ErrInvalidInput)
		return
	}

	if req.UserID == "" {
		h.fail(w, r, req.Action, service.ErrUnauthorized)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, req.Action, domain.ErrInvalidInput)
		return
	}

	res, err := h.service.Handle(r.Context(), &req)
	if err != nil {
		h.fail(w, r, req.Action, err)
		return
	}

	res.Timestamp = priority.FormatTime(h.now())
	response.Plain(w, http.StatusOK, res)
}

func (h *StorageHandler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "storage action failed", "action", action, "error", err)
	} else {
		h.logger.Warn(r.Context(), "storage action rejected", "action", action, "error", err)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}

	response.Plain(w, status, &domain.StorageResult{
		Success:   false,
		Error:     true,
		Message:   msg,
		Timestamp: priority.FormatTime(h.now()),
	})
}
