package classify

// Kind is the category a failure is sorted into. The kind decides whether
// the failure is retried and which notice the user sees.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindAuth       Kind = "auth"
	KindPermission Kind = "permission"
	KindValidation Kind = "validation"
	KindAI         Kind = "ai"
	KindDatabase   Kind = "database"
	KindUnknown    Kind = "unknown"
)

// Kinds lists every kind in classification precedence order.
var Kinds = []Kind{
	KindAuth,
	KindPermission,
	KindValidation,
	KindNetwork,
	KindAI,
	KindDatabase,
	KindUnknown,
}

// Retryable reports whether failures of this kind may succeed on retry.
// Auth, permission and validation failures cannot change without user action,
// and AI provider failures (bad key, quota) are surfaced on the first failure.
func (k Kind) Retryable() bool {
	switch k {
	case KindAuth, KindPermission, KindValidation, KindAI:
		return false
	default:
		return true
	}
}

// Title returns the short, user-facing heading for a failure of this kind.
func (k Kind) Title() string {
	switch k {
	case KindNetwork:
		return "Connection problem"
	case KindAuth:
		return "Session expired"
	case KindPermission:
		return "Permission denied"
	case KindValidation:
		return "Invalid input"
	case KindAI:
		return "AI assistant unavailable"
	case KindDatabase:
		return "Could not save changes"
	default:
		return "Something went wrong"
	}
}

func (k Kind) String() string { return string(k) }
