package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlaceholderPrefix marks ids that were generated locally for an optimistic
// insert and have not yet been confirmed by the remote store.
const PlaceholderPrefix = "temp-"

// Field names shared by patches, filters and the remote store's columns.
const (
	FieldID              = "id"
	FieldOwnerID         = "owner_id"
	FieldTitle           = "title"
	FieldContent         = "content"
	FieldFolderID        = "folder_id"
	FieldTags            = "tags"
	FieldName            = "name"
	FieldColor           = "color"
	FieldCategory        = "category"
	FieldPromptID        = "prompt_id"
	FieldAIModel         = "ai_model"
	FieldDefaultFolderID = "default_folder_id"
	FieldCreatedAt       = "created_at"
	FieldUpdatedAt       = "updated_at"
)

// Entity is implemented by every cached entity.
type Entity interface {
	// EntityID returns the id that is unique within the entity's collection.
	EntityID() string
	// EntityOwner returns the id of the user owning the entity.
	EntityOwner() string
	// Field returns the value of the named field, or nil when the field is
	// unknown or unset. Optional references are returned as *string.
	Field(name string) any
}

// Record is the constraint generic stores and caches place on entity types.
// It lets them merge patches and swap ids without knowing the concrete type.
type Record[T any] interface {
	Entity
	// Apply returns a copy with the patch merged in.
	Apply(p Patch) T
	// WithID returns a copy carrying the given id.
	WithID(id string) T
}

// Patch is a set of field changes keyed by field name.
//
// A nil value clears an optional field (for example FieldFolderID).
type Patch map[string]any

// Has reports whether the patch touches the named field.
func (p Patch) Has(field string) bool {
	_, ok := p[field]
	return ok
}

// Fields returns the touched field names in a stable order.
func (p Patch) Fields() []string {
	fields := make([]string, 0, len(p))
	for k := range p {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// NewPlaceholderID returns a fresh id for an optimistic insert.
func NewPlaceholderID() string {
	return PlaceholderPrefix + uuid.NewString()
}

// IsPlaceholderID reports whether id was generated by NewPlaceholderID.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// optionalString normalizes the accepted encodings of an optional string
// field (nil, string, *string) into a fresh *string.
func optionalString(v any) *string {
	switch s := v.(type) {
	case string:
		return &s
	case *string:
		if s == nil {
			return nil
		}
		c := *s
		return &c
	default:
		return nil
	}
}

func stringValue(v any, fallback string) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s != nil {
			return *s
		}
	}
	return fallback
}

func timeValue(v any, fallback time.Time) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return fallback
}

func copyStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// StringPtr returns a pointer to s. Handy when building patches and inputs.
func StringPtr(s string) *string {
	return &s
}
