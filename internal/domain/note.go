package domain

import (
	"time"
)

// DefaultNoteTitle is used when a note is created without a title.
const DefaultNoteTitle = "Untitled"

// Note is a markdown document owned by a user, optionally filed in a folder.
type Note struct {
	// ===== Identification =====
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	// ===== Content =====
	Title   string `json:"title"`
	Content string `json:"content"`

	// ===== Organization =====
	FolderID *string  `json:"folder_id,omitempty"` // nil when unfiled
	Tags     []string `json:"tags,omitempty"`      // derived from Content

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteInput carries the user-supplied fields of a new note.
type NoteInput struct {
	Title    string  `validate:"max=200"`
	Content  string  `validate:"max=100000"`
	FolderID *string `validate:"omitnil,min=1"`
}

// NotePatch is a typed partial update of a note. Nil fields are left alone.
// DetachFolder clears the folder reference and wins over FolderID.
type NotePatch struct {
	Title        *string `validate:"omitnil,max=200"`
	Content      *string `validate:"omitnil,max=100000"`
	FolderID     *string `validate:"omitnil,min=1"`
	DetachFolder bool
}

// NewNote builds the optimistic placeholder for a note about to be created.
func NewNote(ownerID string, in NoteInput, now time.Time) Note {
	title := in.Title
	if title == "" {
		title = DefaultNoteTitle
	}
	return Note{
		ID:        NewPlaceholderID(),
		OwnerID:   ownerID,
		Title:     title,
		Content:   in.Content,
		FolderID:  copyStringPtr(in.FolderID),
		Tags:      ExtractTags(in.Content),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Patch converts the typed patch into a field patch stamped with now.
func (p NotePatch) Patch(now time.Time) Patch {
	out := Patch{FieldUpdatedAt: now}
	if p.Title != nil {
		out[FieldTitle] = *p.Title
	}
	if p.Content != nil {
		out[FieldContent] = *p.Content
		out[FieldTags] = ExtractTags(*p.Content)
	}
	if p.DetachFolder {
		out[FieldFolderID] = nil
	} else if p.FolderID != nil {
		out[FieldFolderID] = *p.FolderID
	}
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p NotePatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.FolderID == nil && !p.DetachFolder
}

func (n Note) EntityID() string    { return n.ID }
func (n Note) EntityOwner() string { return n.OwnerID }

// InFolder reports whether the note is filed in folderID.
func (n Note) InFolder(folderID string) bool {
	return n.FolderID != nil && *n.FolderID == folderID
}

// Field implements Entity.
func (n Note) Field(name string) any {
	switch name {
	case FieldID:
		return n.ID
	case FieldOwnerID:
		return n.OwnerID
	case FieldTitle:
		return n.Title
	case FieldContent:
		return n.Content
	case FieldFolderID:
		return copyStringPtr(n.FolderID)
	case FieldTags:
		return append([]string(nil), n.Tags...)
	case FieldCreatedAt:
		return n.CreatedAt
	case FieldUpdatedAt:
		return n.UpdatedAt
	}
	return nil
}

// Apply returns a copy of the note with the patch merged in. Tags are always
// recomputed from the resulting content.
func (n Note) Apply(p Patch) Note {
	out := n
	out.FolderID = copyStringPtr(n.FolderID)
	if v, ok := p[FieldTitle]; ok {
		out.Title = stringValue(v, n.Title)
	}
	if v, ok := p[FieldContent]; ok {
		out.Content = stringValue(v, n.Content)
	}
	if v, ok := p[FieldFolderID]; ok {
		out.FolderID = optionalString(v)
	}
	if v, ok := p[FieldUpdatedAt]; ok {
		out.UpdatedAt = timeValue(v, n.UpdatedAt)
	}
	out.Tags = ExtractTags(out.Content)
	return out
}

// WithID returns a copy carrying id.
func (n Note) WithID(id string) Note {
	n.ID = id
	n.FolderID = copyStringPtr(n.FolderID)
	return n
}
