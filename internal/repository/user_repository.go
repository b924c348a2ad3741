package repository

import (
	"context"
	"fmt"
	"net/http"

	"sheetnotes/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const userDocType = "user"

type UserRepository interface {
	FindByID(ctx context.Context, userID string) (*domain.UserRecord, error)
	Save(ctx context.Context, user *domain.UserRecord) error
}

type userRepository struct {
	client *kivik.Client
	dbName string
}

func NewUserRepository(client *kivik.Client, dbName string) UserRepository {
	return &userRepository{
		client: client,
		dbName: dbName,
	}
}

func userDocID(id string) string {
	return fmt.Sprintf("user:%s", id)
}

// FindByID returns domain.ErrNotFound when the user was never registered.
func (r *userRepository) FindByID(ctx context.Context, userID string) (*domain.UserRecord, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, userDocID(userID))

	var user domain.UserRecord
	if err := row.ScanDoc(&user); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

// Save creates the record or, when user.Rev is set, updates it.
func (r *userRepository) Save(ctx context.Context, user *domain.UserRecord) error {
	db := r.client.DB(r.dbName)

	user.ID = userDocID(user.UserID)
	user.Type = userDocType

	rev, err := db.Put(ctx, user.ID, user)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	user.Rev = rev

	return nil
}
