package domain

import "time"

// DefaultAIModel is used until the user picks a model.
const DefaultAIModel = "claude-sonnet-4-5"

// UserSettings holds per-user preferences. There is at most one row per
// owner, so the owner id is also the entity id.
type UserSettings struct {
	OwnerID         string    `json:"owner_id"`
	AIModel         string    `json:"ai_model"`
	DefaultFolderID *string   `json:"default_folder_id,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SettingsPatch is a typed partial update of user settings.
type SettingsPatch struct {
	AIModel            *string `validate:"omitnil,min=1,max=100"`
	DefaultFolderID    *string `validate:"omitnil,min=1"`
	ClearDefaultFolder bool
}

// DefaultSettings returns the settings a user starts with.
func DefaultSettings(ownerID string, now time.Time) UserSettings {
	return UserSettings{OwnerID: ownerID, AIModel: DefaultAIModel, UpdatedAt: now}
}

// Patch converts the typed patch into a field patch stamped with now.
func (p SettingsPatch) Patch(now time.Time) Patch {
	out := Patch{FieldUpdatedAt: now}
	if p.AIModel != nil {
		out[FieldAIModel] = *p.AIModel
	}
	if p.ClearDefaultFolder {
		out[FieldDefaultFolderID] = nil
	} else if p.DefaultFolderID != nil {
		out[FieldDefaultFolderID] = *p.DefaultFolderID
	}
	return out
}

func (s UserSettings) EntityID() string    { return s.OwnerID }
func (s UserSettings) EntityOwner() string { return s.OwnerID }

// Field implements Entity.
func (s UserSettings) Field(name string) any {
	switch name {
	case FieldID, FieldOwnerID:
		return s.OwnerID
	case FieldAIModel:
		return s.AIModel
	case FieldDefaultFolderID:
		return copyStringPtr(s.DefaultFolderID)
	case FieldUpdatedAt:
		return s.UpdatedAt
	}
	return nil
}

// Apply returns a copy of the settings with the patch merged in.
func (s UserSettings) Apply(p Patch) UserSettings {
	out := s
	out.DefaultFolderID = copyStringPtr(s.DefaultFolderID)
	if v, ok := p[FieldAIModel]; ok {
		out.AIModel = stringValue(v, s.AIModel)
	}
	if v, ok := p[FieldDefaultFolderID]; ok {
		out.DefaultFolderID = optionalString(v)
	}
	if v, ok := p[FieldUpdatedAt]; ok {
		out.UpdatedAt = timeValue(v, s.UpdatedAt)
	}
	return out
}

// WithID returns a copy owned by id.
func (s UserSettings) WithID(id string) UserSettings {
	s.OwnerID = id
	s.DefaultFolderID = copyStringPtr(s.DefaultFolderID)
	return s
}
