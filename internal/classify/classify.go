package classify

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/ncruces/go-sqlite3"
)

// Signal is the normalized view of an error that rules match against.
type Signal struct {
	Err     error
	Message string // lower-cased err.Error()
	Code    string // machine-readable code, "" when unknown
}

// Rule maps errors matching Match to Kind.
type Rule struct {
	Name  string
	Kind  Kind
	Match func(s Signal) bool
}

// Classifier sorts errors into kinds by evaluating an ordered rule table.
// The first matching rule wins; errors no rule matches are KindUnknown.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier evaluating rules in the given order.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

var (
	defaultOnce       sync.Once
	defaultClassifier *Classifier
)

// Default returns the classifier built from DefaultRules.
func Default() *Classifier {
	defaultOnce.Do(func() {
		defaultClassifier = NewClassifier(DefaultRules()...)
	})
	return defaultClassifier
}

// Rules returns a copy of the classifier's rule table.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Classify returns the kind of err. Errors that are already classified keep
// their kind. A nil error is KindUnknown.
func (c *Classifier) Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if ce, ok := As(err); ok && ce.Kind != "" {
		return ce.Kind
	}
	s := Signal{Err: err, Message: strings.ToLower(err.Error()), Code: CodeOf(err)}
	for _, r := range c.rules {
		if r.Match(s) {
			return r.Kind
		}
	}
	return KindUnknown
}

// Wrap classifies err and returns it as an *Error tagged with op. Wrapping an
// already classified error returns it unchanged, so callers may wrap at
// every layer without reclassifying. Wrap(op, nil) returns nil.
func (c *Classifier) Wrap(op string, err error) *Error {
	if err == nil {
		return nil
	}
	if ce, ok := As(err); ok {
		if ce.Op == "" {
			ce.Op = op
		}
		return ce
	}
	return &Error{
		Kind:    c.Classify(err),
		Op:      op,
		Code:    CodeOf(err),
		Message: err.Error(),
		Err:     err,
	}
}

// CodeOf extracts a machine-readable code from err: Coder implementations,
// Postgres SQLSTATE codes and SQLite extended result codes.
func CodeOf(err error) string {
	var coder Coder
	if errors.As(err, &coder) {
		if code := coder.ErrorCode(); code != "" {
			return code
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return "SQLITE_" + strconv.Itoa(int(sqliteErr.ExtendedCode()))
	}
	return ""
}

// DefaultRules returns the rule table in precedence order:
// auth, permission, validation, network, ai, database.
//
// Order matters. A statement timeout reported by the database contains
// "timeout" and is therefore classified as network, and an expired JWT that
// the store reports with a 401 is auth, not permission.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "auth", Kind: KindAuth, Match: matchAuth},
		{Name: "permission", Kind: KindPermission, Match: matchPermission},
		{Name: "validation", Kind: KindValidation, Match: matchValidation},
		{Name: "network", Kind: KindNetwork, Match: matchNetwork},
		{Name: "ai", Kind: KindAI, Match: matchAI},
		{Name: "database", Kind: KindDatabase, Match: matchDatabase},
	}
}

func matchAuth(s Signal) bool {
	if errors.Is(s.Err, ErrSessionExpired) ||
		errors.Is(s.Err, jwt.ErrTokenExpired) ||
		errors.Is(s.Err, jwt.ErrTokenMalformed) ||
		errors.Is(s.Err, jwt.ErrTokenSignatureInvalid) {
		return true
	}
	switch s.Code {
	case "PGRST301", "PGRST302", "session_expired", "session_not_found",
		"bad_jwt", "refresh_token_not_found", "refresh_token_already_used":
		return true
	}
	return containsAny(s.Message,
		"jwt expired",
		"invalid jwt",
		"jwt malformed",
		"session expired",
		"session not found",
		"auth session missing",
		"invalid refresh token",
		"refresh token not found",
		"token is expired",
		"token has expired",
		"not authenticated",
		"auth timeout",
		"authentication timed out",
	)
}

func matchPermission(s Signal) bool {
	if errors.Is(s.Err, ErrPermission) {
		return true
	}
	switch s.Code {
	case "401", "403", pgerrcode.InsufficientPrivilege:
		return true
	}
	return containsAny(s.Message,
		"403",
		"forbidden",
		"unauthorized",
		"not authorized",
		"permission denied",
		"insufficient privilege",
		"row-level security",
		"access denied",
	)
}

func matchValidation(s Signal) bool {
	var verrs validator.ValidationErrors
	if errors.As(s.Err, &verrs) {
		return true
	}
	if errors.Is(s.Err, ErrValidation) || errors.Is(s.Err, ErrNotFound) || errors.Is(s.Err, ErrPending) {
		return true
	}
	if len(s.Code) == 5 && pgerrcode.IsDataException(s.Code) {
		return true
	}
	return containsAny(s.Message, "validation failed", "invalid input")
}

func matchNetwork(s Signal) bool {
	if errors.Is(s.Err, ErrTimeout) ||
		errors.Is(s.Err, ErrCanceled) ||
		errors.Is(s.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(s.Err, &netErr) {
		return true
	}
	if len(s.Code) == 5 && pgerrcode.IsConnectionException(s.Code) {
		return true
	}
	switch s.Code {
	case "timeout", "canceled", "network_error":
		return true
	}
	return containsAny(s.Message,
		"failed to fetch",
		"fetch failed",
		"network",
		"connection",
		"timeout",
		"timed out",
		"econnrefused",
		"econnreset",
		"no such host",
	)
}

func matchAI(s Signal) bool {
	if errors.Is(s.Err, ErrAIProvider) {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(s.Err, &apiErr) {
		return true
	}
	switch s.Code {
	case "invalid_credentials", "quota_exceeded", "provider_error":
		return true
	}
	return containsAny(s.Message,
		"api key",
		"api_key",
		"x-api-key",
		"quota",
		"rate limit",
		"credit balance",
		"overloaded",
		"anthropic",
		"openai",
		"gemini",
	)
}

func matchDatabase(s Signal) bool {
	var pgErr *pgconn.PgError
	if errors.As(s.Err, &pgErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(s.Err, &pqErr) {
		return true
	}
	var sqliteErr *sqlite3.Error
	if errors.As(s.Err, &sqliteErr) {
		return true
	}
	if strings.HasPrefix(s.Code, "SQLITE_") || strings.HasPrefix(s.Code, "PGRST") {
		return true
	}
	if len(s.Code) == 5 && (pgerrcode.IsIntegrityConstraintViolation(s.Code) || s.Code == pgerrcode.UndefinedTable) {
		return true
	}
	return containsAny(s.Message,
		"duplicate key",
		"violates",
		"constraint",
		"relation",
		"does not exist",
		"database",
		"sqlite",
	)
}

func containsAny(msg string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}
