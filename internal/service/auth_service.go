package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/identity"
	"sheetnotes/pkg/jwt"
)

// MinSecretLength is the shortest accepted session signing secret.
const MinSecretLength = 32

type AuthService struct {
	verifier      identity.Verifier
	allowed       map[string]struct{}
	jwtSecret     string
	jwtExpiration time.Duration
}

// NewAuthService builds the session gate. An empty allowedUsers list lets
// every verified user in.
func NewAuthService(verifier identity.Verifier, allowedUsers []string, jwtSecret string, jwtExp time.Duration) *AuthService {
	allowed := make(map[string]struct{}, len(allowedUsers))
	for _, email := range allowedUsers {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			allowed[email] = struct{}{}
		}
	}

	return &AuthService{
		verifier:      verifier,
		allowed:       allowed,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExp,
	}
}

func (s *AuthService) Verify(ctx context.Context, assertion string) (*domain.User, error) {
	user, err := s.verifier.Verify(ctx, assertion)
	if err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAssertion, err)
	}
	return user, nil
}

func (s *AuthService) CheckAccess(email string) error {
	if len(s.allowed) == 0 {
		return nil
	}
	if _, ok := s.allowed[strings.ToLower(strings.TrimSpace(email))]; !ok {
		return fmt.Errorf("%w: %s is not on the allow-list", domain.ErrAccessDenied, email)
	}
	return nil
}

func (s *AuthService) IssueSession(user *domain.User) (string, error) {
	if len(s.jwtSecret) < MinSecretLength {
		return "", fmt.Errorf("session signing secret must be at least %d characters", MinSecretLength)
	}

	token, err := jwt.GenerateToken(jwt.Identity{
		Subject: user.Subject,
		Email:   user.Email,
		Name:    user.Name,
		Picture: user.Picture,
	}, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return token, nil
}

func (s *AuthService) RequireSession(token string) (*domain.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrInvalidSession)
	}

	claims, err := jwt.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSession, err)
	}

	id := claims.Identity()
	return &domain.User{
		Subject: id.Subject,
		Email:   id.Email,
		Name:    id.Name,
		Picture: id.Picture,
	}, nil
}

// Login verifies the assertion, checks the allow-list and issues a session.
func (s *AuthService) Login(ctx context.Context, req *domain.VerifyRequest) (*domain.VerifyResponse, error) {
	user, err := s.Verify(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	if err := s.CheckAccess(user.Email); err != nil {
		return nil, err
	}

	token, err := s.IssueSession(user)
	if err != nil {
		return nil, err
	}

	return &domain.VerifyResponse{
		User:          user,
		Authenticated: true,
		Token:         token,
		ExpiresIn:     int64(s.jwtExpiration.Seconds()),
	}, nil
}
