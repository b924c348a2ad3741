package domain

import (
	"strings"

	"sheetnotes/internal/envelope"
)

// Note is a decrypted note as the application works with it.
type Note struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Comments    string `json:"comments"`
	Tags        string `json:"tags"`
	System      string `json:"system"`

	Done       bool     `json:"done"`
	Priority   Priority `json:"priority"`
	Timestamp  string   `json:"timestamp"`
	DateDone   string   `json:"dateDone"`
	DateUndone string   `json:"dateUndone"`

	DueDate          string `json:"dueDate"`
	IsOverdue        bool   `json:"isOverdue"`
	OverdueCheckedAt string `json:"overdueCheckedAt"`

	UserID       string `json:"userId"`
	UserEmail    string `json:"userEmail"`
	CreatedBy    string `json:"createdBy"`
	LastModified string `json:"lastModified"`
	IsShared     bool   `json:"isShared"`
}

// WireNote is a note as exchanged with the storage collaborator. The
// sensitive fields are sealed or legacy plain text.
type WireNote struct {
	ID          string         `json:"id"`
	Title       envelope.Field `json:"title"`
	Description envelope.Field `json:"description"`
	Comments    envelope.Field `json:"comments"`
	Tags        string         `json:"tags"`
	System      string         `json:"system"`

	Done       bool     `json:"done"`
	Priority   Priority `json:"priority"`
	Timestamp  string   `json:"timestamp"`
	DateDone   string   `json:"dateDone"`
	DateUndone string   `json:"dateUndone"`

	DueDate          string `json:"dueDate"`
	IsOverdue        bool   `json:"isOverdue"`
	OverdueCheckedAt string `json:"overdueCheckedAt"`

	UserID       string `json:"userId"`
	UserEmail    string `json:"userEmail"`
	CreatedBy    string `json:"createdBy"`
	LastModified string `json:"lastModified"`
	IsShared     bool   `json:"isShared"`
}

// ToWire copies the non-sensitive fields. Callers fill the sealed ones.
func (n *Note) ToWire() *WireNote {
	return &WireNote{
		ID:               n.ID,
		Title:            envelope.Plain(n.Title),
		Description:      envelope.Plain(n.Description),
		Comments:         envelope.Plain(n.Comments),
		Tags:             n.Tags,
		System:           n.System,
		Done:             n.Done,
		Priority:         n.Priority,
		Timestamp:        n.Timestamp,
		DateDone:         n.DateDone,
		DateUndone:       n.DateUndone,
		DueDate:          n.DueDate,
		IsOverdue:        n.IsOverdue,
		OverdueCheckedAt: n.OverdueCheckedAt,
		UserID:           n.UserID,
		UserEmail:        n.UserEmail,
		CreatedBy:        n.CreatedBy,
		LastModified:     n.LastModified,
		IsShared:         n.IsShared,
	}
}

// FromWire copies the non-sensitive fields and takes the raw text of the
// sensitive ones. Callers overwrite those with decrypted values.
func FromWire(w *WireNote) *Note {
	return &Note{
		ID:               w.ID,
		Title:            w.Title.Raw(),
		Description:      w.Description.Raw(),
		Comments:         w.Comments.Raw(),
		Tags:             w.Tags,
		System:           w.System,
		Done:             w.Done,
		Priority:         w.Priority,
		Timestamp:        w.Timestamp,
		DateDone:         w.DateDone,
		DateUndone:       w.DateUndone,
		DueDate:          w.DueDate,
		IsOverdue:        w.IsOverdue,
		OverdueCheckedAt: w.OverdueCheckedAt,
		UserID:           w.UserID,
		UserEmail:        w.UserEmail,
		CreatedBy:        w.CreatedBy,
		LastModified:     w.LastModified,
		IsShared:         w.IsShared,
	}
}

func (n *Note) Clone() *Note {
	c := *n
	return &c
}

// ParseTags splits a comma-separated tag list into trimmed, lower-cased,
// non-empty tags.
func ParseTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// MatchesAnyTag reports whether the note carries at least one of tags. An
// empty query matches every note.
func (n *Note) MatchesAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	own := ParseTags(n.Tags)
	for _, want := range tags {
		for _, have := range own {
			if have == want {
				return true
			}
		}
	}
	return false
}

type CreateNoteRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=500"`
	Description *string `json:"description" validate:"omitempty,max=20000"`
	Tags        *string `json:"tags" validate:"omitempty,max=500"`
	Comments    *string `json:"comments" validate:"omitempty,max=20000"`
	System      *string `json:"system" validate:"omitempty,max=200"`
	DueDate     *string `json:"dueDate"`
}

// UpdateNoteRequest carries user-editable fields only; ownership and status
// fields are not accepted here.
type UpdateNoteRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=500"`
	Description *string `json:"description" validate:"omitempty,max=20000"`
	Tags        *string `json:"tags" validate:"omitempty,max=500"`
	Comments    *string `json:"comments" validate:"omitempty,max=20000"`
	System      *string `json:"system" validate:"omitempty,max=200"`
	DueDate     *string `json:"dueDate"`
}

type MoveDirection string

const (
	MoveUp   MoveDirection = "up"
	MoveDown MoveDirection = "down"
)

type MoveNoteRequest struct {
	Direction MoveDirection `json:"direction" validate:"required,oneof=up down"`
}
