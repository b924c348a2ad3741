package domain

import "time"

// User is a verified identity. Subject is the identity provider's stable id.
type User struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// UserRecord is the collaborator's registry entry for a user who has
// written at least one note.
type UserRecord struct {
	ID        string    `json:"_id"`
	Rev       string    `json:"_rev,omitempty"`
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
	IsActive  bool      `json:"is_active"`
}

type VerifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type VerifyResponse struct {
	User          *User  `json:"user"`
	Authenticated bool   `json:"authenticated"`
	Token         string `json:"token"`
	ExpiresIn     int64  `json:"expires_in"`
}
