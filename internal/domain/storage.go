package domain

import "time"

// Storage collaborator actions.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionTest   = "test"
)

// User context parameter names, used both as GET query keys and POST body
// members.
const (
	ParamUserID    = "X-User-ID"
	ParamUserEmail = "X-User-Email"
	ParamUserName  = "X-User-Name"
)

// StorageRequest is the POST body understood by the storage collaborator.
type StorageRequest struct {
	Action    string    `json:"action" validate:"required,oneof=add update delete test"`
	Note      *WireNote `json:"note"`
	UserID    string    `json:"X-User-ID"`
	UserEmail string    `json:"X-User-Email"`
	UserName  string    `json:"X-User-Name"`
}

// StorageResult is the collaborator's reply to a POST.
type StorageResult struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message,omitempty"`
	Error     bool         `json:"error,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
	User      *StorageUser `json:"user,omitempty"`
}

// StorageUser is the user context as the collaborator sees it.
type StorageUser struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
	UserName  string `json:"userName"`
}

// StoredNote is a note at rest in the collaborator's database. Sensitive
// fields hold either plain text or a JSON-stringified sealed object, the way
// the original sheet rows did.
type StoredNote struct {
	ID               string    `json:"_id"`
	Rev              string    `json:"_rev,omitempty"`
	Type             string    `json:"type"`
	NoteID           string    `json:"id"`
	Timestamp        string    `json:"timestamp"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Tags             string    `json:"tags"`
	Comments         string    `json:"comments"`
	System           string    `json:"system"`
	Done             bool      `json:"done"`
	DateDone         string    `json:"dateDone"`
	DateUndone       string    `json:"dateUndone"`
	Priority         Priority  `json:"priority"`
	UserID           string    `json:"userId"`
	UserEmail        string    `json:"userEmail"`
	CreatedBy        string    `json:"createdBy"`
	LastModified     string    `json:"lastModified"`
	IsShared         bool      `json:"isShared"`
	DueDate          string    `json:"dueDate"`
	IsOverdue        bool      `json:"isOverdue"`
	OverdueCheckedAt string    `json:"overdueCheckedAt"`
	UpdatedAt        time.Time `json:"updated_at"`
}
