// Package identity verifies Google ID tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/logging"
)

const (
	GoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

	DefaultRefreshInterval = time.Hour
	// an unknown kid triggers at most one refetch per interval
	DefaultUnknownKeyInterval = 5 * time.Minute

	keyFetchTimeout = 10 * time.Second
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// Verifier checks an identity assertion and returns the user it names.
type Verifier interface {
	Verify(ctx context.Context, assertion string) (*domain.User, error)
}

type googleClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// GoogleVerifier validates RS256 ID tokens against Google's published keys.
// The key set is fetched on construction, refreshed in the background and
// refetched, rate limited, when an unknown kid shows up.
type GoogleVerifier struct {
	clientID string
	keys     keyfunc.Keyfunc
	now      func() time.Time
}

type options struct {
	certsURL        string
	httpClient      *http.Client
	unknownKeyEvery time.Duration
	now             func() time.Time
	logger          logging.Logger
}

type Option func(*options)

func WithCertsURL(u string) Option {
	return func(o *options) { o.certsURL = u }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithUnknownKeyInterval sets the minimum gap between refetches caused by
// tokens whose kid is not in the cached set.
func WithUnknownKeyInterval(d time.Duration) Option {
	return func(o *options) { o.unknownKeyEvery = d }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewGoogleVerifier fetches the key set and starts its refresh loop, which
// runs until ctx is done. An unreachable key server is logged, not fatal;
// tokens are rejected until a fetch succeeds.
func NewGoogleVerifier(ctx context.Context, clientID string, opts ...Option) (*GoogleVerifier, error) {
	o := &options{
		certsURL:        GoogleCertsURL,
		httpClient:      &http.Client{Timeout: keyFetchTimeout},
		unknownKeyEvery: DefaultUnknownKeyInterval,
		now:             time.Now,
		logger:          logging.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}

	keys, err := keyfunc.NewDefaultOverrideCtx(ctx, []string{o.certsURL}, keyfunc.Override{
		Client:            o.httpClient,
		HTTPTimeout:       keyFetchTimeout,
		RateLimitWaitMax:  time.Second,
		RefreshInterval:   DefaultRefreshInterval,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(o.unknownKeyEvery), 1),
		RefreshErrorHandlerFunc: func(u string) func(ctx context.Context, err error) {
			return func(ctx context.Context, err error) {
				o.logger.Error(ctx, "failed to refresh signing keys", "url", u, "error", err)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}

	return &GoogleVerifier{
		clientID: clientID,
		keys:     keys,
		now:      o.now,
	}, nil
}

func (v *GoogleVerifier) Verify(ctx context.Context, assertion string) (*domain.User, error) {
	if assertion == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrInvalidAssertion)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)

	lookup := v.keys.KeyfuncCtx(ctx)
	claims := &googleClaims{}
	token, err := parser.ParseWithClaims(assertion, claims, func(token *jwt.Token) (interface{}, error) {
		if kid, _ := token.Header["kid"].(string); kid == "" {
			return nil, errors.New("token has no key id")
		}
		return lookup(token)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAssertion, err)
	}
	if !token.Valid {
		return nil, domain.ErrInvalidAssertion
	}

	if !validIssuer(claims.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", domain.ErrInvalidAssertion, claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrInvalidAssertion)
	}

	return &domain.User{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

func validIssuer(iss string) bool {
	for _, want := range googleIssuers {
		if iss == want {
			return true
		}
	}
	return false
}
