// Package notestore talks to the storage collaborator over HTTP.
//
// Reads are GET requests with the user context in the query string and
// return a JSON array of notes. Writes are POST requests whose body is a
// JSON object sent as text/plain, answered with {success, message}.
package notestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/envelope"
	"sheetnotes/internal/logging"
)

const (
	DefaultTimeout = 15 * time.Second

	// JSON body; the collaborator expects text/plain
	contentType = "text/plain;charset=utf-8"

	maxBodySize = 10 << 20
)

// Cipher seals and opens sensitive fields. *envelope.Envelope implements it.
type Cipher interface {
	Encrypt(plaintext string) (envelope.Field, error)
	Decrypt(f envelope.Field) (string, error)
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logging.Logger
}

func New(endpoint string, timeout time.Duration, logger logging.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithHTTPClient(endpoint, &http.Client{Timeout: timeout}, logger)
}

func NewWithHTTPClient(endpoint string, hc *http.Client, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: hc,
		logger:     logger,
	}
}

// List returns the user's notes with sensitive fields decrypted. A field
// that cannot be decrypted keeps its stored value and is logged; the other
// fields and notes are unaffected.
func (c *Client) List(ctx context.Context, user *domain.User, cipher Cipher) ([]*domain.Note, error) {
	body, status, err := c.fetch(ctx, user)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, storageFailure("list", status, body)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, storageFailure("list", status, body)
	}

	var wire []*domain.WireNote
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, &domain.StorageError{Action: "list", StatusCode: status, Message: "malformed note list", Err: err}
	}

	notes := make([]*domain.Note, 0, len(wire))
	for _, w := range wire {
		if w == nil {
			continue
		}
		notes = append(notes, c.open(ctx, w, cipher))
	}
	return notes, nil
}

func (c *Client) open(ctx context.Context, w *domain.WireNote, cipher Cipher) *domain.Note {
	n := domain.FromWire(w)

	fields := []struct {
		name string
		src  envelope.Field
		dst  *string
	}{
		{"title", w.Title, &n.Title},
		{"description", w.Description, &n.Description},
		{"comments", w.Comments, &n.Comments},
	}

	for _, f := range fields {
		plain, err := cipher.Decrypt(f.src)
		if err != nil {
			fieldErr := &envelope.FieldError{NoteID: w.ID, Field: f.name, Err: err}
			c.logger.Warn(ctx, "keeping stored value for undecryptable field",
				"note_id", w.ID, "field", f.name, "error", fieldErr)
			continue
		}
		*f.dst = plain
	}
	return n
}

func (c *Client) seal(n *domain.Note, cipher Cipher) (*domain.WireNote, error) {
	w := n.ToWire()

	fields := []struct {
		name string
		src  string
		dst  *envelope.Field
	}{
		{"title", n.Title, &w.Title},
		{"description", n.Description, &w.Description},
		{"comments", n.Comments, &w.Comments},
	}

	for _, f := range fields {
		sealed, err := cipher.Encrypt(f.src)
		if err != nil {
			return nil, &envelope.FieldError{NoteID: n.ID, Field: f.name, Err: err}
		}
		*f.dst = sealed
	}
	return w, nil
}

// Delete sends only the note id.
func (c *Client) Delete(ctx context.Context, user *domain.User, id string) (*domain.StorageResult, error) {
	req := &domain.StorageRequest{
		Action: domain.ActionDelete,
		Note:   &domain.WireNote{ID: id},
	}
	return c.post(ctx, user, req)
}

// Push encrypts the sensitive fields of n and sends it with action.
func (c *Client) Push(ctx context.Context, user *domain.User, action string, n *domain.Note, cipher Cipher) (*domain.StorageResult, error) {
	w, err := c.seal(n, cipher)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, user, &domain.StorageRequest{Action: action, Note: w})
}

// Test is a connectivity check. The collaborator echoes the user context.
func (c *Client) Test(ctx context.Context, user *domain.User) (*domain.StorageResult, error) {
	return c.post(ctx, user, &domain.StorageRequest{Action: domain.ActionTest})
}

func (c *Client) post(ctx context.Context, user *domain.User, req *domain.StorageRequest) (*domain.StorageResult, error) {
	req.UserID, req.UserEmail, req.UserName = user.Subject, user.Email, user.Name

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", req.Action, err)
	}

	body, status, err := c.send(ctx, http.MethodPost, c.endpoint, payload)
	if err != nil {
		return nil, &domain.StorageError{Action: req.Action, Message: err.Error(), Err: err}
	}
	if status < 200 || status > 299 {
		return nil, storageFailure(req.Action, status, body)
	}

	var result domain.StorageResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &domain.StorageError{Action: req.Action, StatusCode: status, Message: "malformed response", Err: err}
	}
	if !result.Success || result.Error {
		return &result, classify(&domain.StorageError{Action: req.Action, StatusCode: status, Message: result.Message})
	}
	return &result, nil
}

// sensitiveFields are the note members that never reach the collaborator
// in plaintext.
var sensitiveFields = []string{"title", "description", "comments"}

func (c *Client) fetch(ctx context.Context, user *domain.User) ([]byte, int, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid storage endpoint: %w", err)
	}
	q := u.Query()
	q.Set(domain.ParamUserID, user.Subject)
	q.Set(domain.ParamUserEmail, user.Email)
	q.Set(domain.ParamUserName, user.Name)
	u.RawQuery = q.Encode()

	body, status, err := c.send(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, &domain.StorageError{Action: "list", Message: err.Error(), Err: err}
	}
	return body, status, nil
}

// ListRaw fetches the collaborator's GET response and opens the sensitive
// members of every note in it. Other members pass through untouched. A
// response that is not a note array is returned as-is.
func (c *Client) ListRaw(ctx context.Context, user *domain.User, cipher Cipher) ([]byte, int, error) {
	body, status, err := c.fetch(ctx, user)
	if err != nil || status < 200 || status > 299 {
		return body, status, err
	}

	var notes []map[string]json.RawMessage
	if err := json.Unmarshal(body, &notes); err != nil {
		return body, status, nil
	}

	for _, n := range notes {
		if n == nil {
			continue
		}
		var id string
		_ = json.Unmarshal(n["id"], &id)

		for _, name := range sensitiveFields {
			raw, ok := n[name]
			if !ok {
				continue
			}
			var f envelope.Field
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			plain, err := cipher.Decrypt(f)
			if err != nil {
				c.logger.Warn(ctx, "keeping stored value for undecryptable field",
					"note_id", id, "field", name, "error", &envelope.FieldError{NoteID: id, Field: name, Err: err})
				continue
			}
			if n[name], err = json.Marshal(plain); err != nil {
				return nil, status, fmt.Errorf("failed to encode note list: %w", err)
			}
		}
	}

	out, err := json.Marshal(notes)
	if err != nil {
		return nil, status, fmt.Errorf("failed to encode note list: %w", err)
	}
	return out, status, nil
}

// PostRaw forwards payload with the user context members overwritten and
// the sensitive members of payload["note"] sealed, and returns the
// collaborator's response as-is. Nothing is sent when sealing fails.
func (c *Client) PostRaw(ctx context.Context, user *domain.User, payload map[string]any, cipher Cipher) ([]byte, int, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload[domain.ParamUserID] = user.Subject
	payload[domain.ParamUserEmail] = user.Email
	payload[domain.ParamUserName] = user.Name

	if note, ok := payload["note"].(map[string]any); ok {
		id, _ := note["id"].(string)
		for _, name := range sensitiveFields {
			s, ok := note[name].(string)
			if !ok || envelope.FromStored(s).Sealed != nil {
				continue
			}
			sealed, err := cipher.Encrypt(s)
			if err != nil {
				return nil, 0, &envelope.FieldError{NoteID: id, Field: name, Err: err}
			}
			note[name] = sealed
		}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode request: %w", err)
	}

	body, status, err := c.send(ctx, http.MethodPost, c.endpoint, b)
	if err != nil {
		return nil, 0, &domain.StorageError{Action: "proxy", Message: err.Error(), Err: err}
	}
	return body, status, nil
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "storage request failed", "method", method, "error", err)
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	c.logger.Debug(ctx, "storage request",
		"method", method, "status", resp.StatusCode, "duration", time.Since(start))
	return body, resp.StatusCode, nil
}

func storageFailure(action string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))

	var result domain.StorageResult
	if err := json.Unmarshal(body, &result); err == nil && result.Message != "" {
		msg = result.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}

	return classify(&domain.StorageError{Action: action, StatusCode: status, Message: msg})
}

// classify attaches ErrNotFound or ErrOwnership when the collaborator's
// message names one of them.
func classify(e *domain.StorageError) error {
	lower := strings.ToLower(e.Message)
	switch {
	case strings.Contains(lower, "not found"):
		e.Err = domain.ErrNotFound
	case strings.Contains(lower, "access denied"), strings.Contains(lower, "do not own"),
		strings.Contains(lower, "ownership"):
		e.Err = domain.ErrOwnership
	case e.Message == "":
		e.Err = errors.New("storage reported failure")
		e.Message = e.Err.Error()
	}
	return e
}
