// Package session holds the signed-in user's identity and credentials.
//
// A Session is created per sign-in and injected into the engine. Signing out
// runs the registered hooks exactly once, which is how the engine discards
// the user's cached collections.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/mschirtzinger/notesync/internal/classify"
)

// Sign-out reasons.
const (
	ReasonUser    = "user"
	ReasonExpired = "session_expired"
)

var (
	// ErrSessionExpired is returned when the access token has expired.
	ErrSessionExpired = classify.ErrSessionExpired

	// ErrSignedOut is returned by operations attempted after sign-out.
	ErrSignedOut = errors.New("not signed in")
)

// SignOutFunc is called once when the session ends.
type SignOutFunc func(userID, reason string)

// Session is one signed-in user. It is safe for concurrent use.
type Session struct {
	mu          sync.RWMutex
	userID      string
	accessToken string
	aiKey       string
	signedIn    bool
	reason      string
	hooks       []SignOutFunc
	log         zerolog.Logger
	now         func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithAccessToken sets the remote store access token. JWTs are checked for
// expiry before remote calls.
func WithAccessToken(token string) Option {
	return func(s *Session) { s.accessToken = token }
}

// WithAIKey sets the AI provider credential.
func WithAIKey(key string) Option {
	return func(s *Session) { s.aiKey = key }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New returns a signed-in session for userID.
func New(userID string, opts ...Option) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	s := &Session{
		userID:   userID,
		signedIn: true,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UserID returns the owner id of every entity in this session.
func (s *Session) UserID() string {
	return s.userID
}

// AccessToken returns the remote store token.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// AIKey returns the AI provider credential.
func (s *Session) AIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aiKey
}

// SignedIn reports whether the session is still active.
func (s *Session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signedIn
}

// Reason returns why the session ended, or "" while signed in.
func (s *Session) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// OnSignOut registers fn to run when the session ends. Hooks run in
// registration order.
func (s *Session) OnSignOut(fn SignOutFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// SignOut ends the session and runs the sign-out hooks. Only the first call
// has an effect; it reports whether this call ended the session.
func (s *Session) SignOut(reason string) bool {
	s.mu.Lock()
	if !s.signedIn {
		s.mu.Unlock()
		return false
	}
	s.signedIn = false
	s.reason = reason
	s.accessToken = ""
	hooks := append([]SignOutFunc(nil), s.hooks...)
	s.mu.Unlock()

	s.log.Info().Str("user", s.userID).Str("reason", reason).Msg("signed out")
	for _, fn := range hooks {
		fn(s.userID, reason)
	}
	return true
}

// Require returns the user id, or an auth error once the session has ended
// or its access token has expired.
func (s *Session) Require(op string) (string, error) {
	if !s.SignedIn() {
		return "", &classify.Error{
			Kind:    classify.KindAuth,
			Op:      op,
			Code:    "signed_out",
			Message: "not signed in",
			Err:     ErrSignedOut,
		}
	}
	if err := s.CheckToken(); err != nil {
		return "", &classify.Error{
			Kind:    classify.KindAuth,
			Op:      op,
			Code:    "session_expired",
			Message: err.Error(),
			Err:     err,
		}
	}
	return s.userID, nil
}

// CheckToken reports ErrSessionExpired when the access token is a JWT whose
// exp claim has passed. Opaque or absent tokens are not checked; the remote
// store is the authority for those.
func (s *Session) CheckToken() error {
	token := s.AccessToken()
	if token == "" {
		return nil
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Not a JWT.
		return nil
	}
	if claims.Subject != "" && claims.Subject != s.userID {
		return fmt.Errorf("%w: token subject %q does not match user %q", ErrSessionExpired, claims.Subject, s.userID)
	}
	if claims.ExpiresAt != nil && !s.now().Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w: token expired at %s", ErrSessionExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return nil
}
