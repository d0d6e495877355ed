package domain

import (
	"regexp"
	"time"
)

// DefaultFolderColor is assigned to folders created without a color.
const DefaultFolderColor = "gray"

// FolderColors is the palette offered for folders. Arbitrary hex colors are
// accepted as well.
var FolderColors = []string{"gray", "red", "orange", "yellow", "green", "blue", "purple", "pink"}

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Folder groups notes. Deleting a folder never deletes its notes; they become
// unfiled instead.
type Folder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// FolderInput carries the user-supplied fields of a new folder.
type FolderInput struct {
	Name  string `validate:"required,max=100"`
	Color string `validate:"omitempty,folder_color"`
}

// FolderPatch is a typed partial update of a folder.
type FolderPatch struct {
	Name  *string `validate:"omitnil,min=1,max=100"`
	Color *string `validate:"omitnil,folder_color"`
}

// IsValidFolderColor reports whether c is a palette name or a hex color.
func IsValidFolderColor(c string) bool {
	for _, name := range FolderColors {
		if c == name {
			return true
		}
	}
	return hexColorPattern.MatchString(c)
}

// NewFolder builds the optimistic placeholder for a folder about to be created.
func NewFolder(ownerID string, in FolderInput, now time.Time) Folder {
	color := in.Color
	if color == "" {
		color = DefaultFolderColor
	}
	return Folder{
		ID:        NewPlaceholderID(),
		OwnerID:   ownerID,
		Name:      in.Name,
		Color:     color,
		CreatedAt: now,
	}
}

// Patch converts the typed patch into a field patch.
func (p FolderPatch) Patch() Patch {
	out := Patch{}
	if p.Name != nil {
		out[FieldName] = *p.Name
	}
	if p.Color != nil {
		out[FieldColor] = *p.Color
	}
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p FolderPatch) IsEmpty() bool {
	return p.Name == nil && p.Color == nil
}

func (f Folder) EntityID() string    { return f.ID }
func (f Folder) EntityOwner() string { return f.OwnerID }

// Field implements Entity.
func (f Folder) Field(name string) any {
	switch name {
	case FieldID:
		return f.ID
	case FieldOwnerID:
		return f.OwnerID
	case FieldName:
		return f.Name
	case FieldColor:
		return f.Color
	case FieldCreatedAt:
		return f.CreatedAt
	}
	return nil
}

// Apply returns a copy of the folder with the patch merged in.
func (f Folder) Apply(p Patch) Folder {
	if v, ok := p[FieldName]; ok {
		f.Name = stringValue(v, f.Name)
	}
	if v, ok := p[FieldColor]; ok {
		f.Color = stringValue(v, f.Color)
	}
	return f
}

// WithID returns a copy carrying id.
func (f Folder) WithID(id string) Folder {
	f.ID = id
	return f
}
