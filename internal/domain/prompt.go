package domain

import "time"

// Prompt is a saved AI prompt template. The content may reference the note it
// is run against with {{title}} and {{content}}.
type Prompt struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PromptInput carries the user-supplied fields of a new prompt.
type PromptInput struct {
	Title    string `validate:"required,max=200" toml:"title"`
	Content  string `validate:"required,max=20000" toml:"content"`
	Category string `validate:"max=50" toml:"category"`
}

// PromptPatch is a typed partial update of a prompt.
type PromptPatch struct {
	Title    *string `validate:"omitnil,min=1,max=200"`
	Content  *string `validate:"omitnil,min=1,max=20000"`
	Category *string `validate:"omitnil,max=50"`
}

// HiddenPrompt marks a prompt as hidden for its owner. The prompt id doubles
// as the marker id since a prompt is hidden at most once per owner.
type HiddenPrompt struct {
	PromptID  string    `json:"prompt_id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPrompt builds the optimistic placeholder for a prompt about to be created.
func NewPrompt(ownerID string, in PromptInput, now time.Time) Prompt {
	return Prompt{
		ID:        NewPlaceholderID(),
		OwnerID:   ownerID,
		Title:     in.Title,
		Content:   in.Content,
		Category:  in.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Patch converts the typed patch into a field patch stamped with now.
func (p PromptPatch) Patch(now time.Time) Patch {
	out := Patch{FieldUpdatedAt: now}
	if p.Title != nil {
		out[FieldTitle] = *p.Title
	}
	if p.Content != nil {
		out[FieldContent] = *p.Content
	}
	if p.Category != nil {
		out[FieldCategory] = *p.Category
	}
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p PromptPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Category == nil
}

func (p Prompt) EntityID() string    { return p.ID }
func (p Prompt) EntityOwner() string { return p.OwnerID }

// Field implements Entity.
func (p Prompt) Field(name string) any {
	switch name {
	case FieldID:
		return p.ID
	case FieldOwnerID:
		return p.OwnerID
	case FieldTitle:
		return p.Title
	case FieldContent:
		return p.Content
	case FieldCategory:
		return p.Category
	case FieldCreatedAt:
		return p.CreatedAt
	case FieldUpdatedAt:
		return p.UpdatedAt
	}
	return nil
}

// Apply returns a copy of the prompt with the patch merged in.
func (p Prompt) Apply(patch Patch) Prompt {
	if v, ok := patch[FieldTitle]; ok {
		p.Title = stringValue(v, p.Title)
	}
	if v, ok := patch[FieldContent]; ok {
		p.Content = stringValue(v, p.Content)
	}
	if v, ok := patch[FieldCategory]; ok {
		p.Category = stringValue(v, p.Category)
	}
	if v, ok := patch[FieldUpdatedAt]; ok {
		p.UpdatedAt = timeValue(v, p.UpdatedAt)
	}
	return p
}

// WithID returns a copy carrying id.
func (p Prompt) WithID(id string) Prompt {
	p.ID = id
	return p
}

func (h HiddenPrompt) EntityID() string    { return h.PromptID }
func (h HiddenPrompt) EntityOwner() string { return h.OwnerID }

// Field implements Entity.
func (h HiddenPrompt) Field(name string) any {
	switch name {
	case FieldID, FieldPromptID:
		return h.PromptID
	case FieldOwnerID:
		return h.OwnerID
	case FieldCreatedAt:
		return h.CreatedAt
	}
	return nil
}

// Apply returns h unchanged; markers have no mutable fields.
func (h HiddenPrompt) Apply(Patch) HiddenPrompt { return h }

// WithID returns a copy marking prompt id.
func (h HiddenPrompt) WithID(id string) HiddenPrompt {
	h.PromptID = id
	return h
}
