// Package domain defines the entities the sync engine keeps in its cache and
// exchanges with the remote store.
//
// # Entities
//
// Every entity is a plain value type owned by exactly one user:
//
//   - Note: title, markdown content, optional folder, derived tags
//   - Folder: named, colored container for notes
//   - Prompt: a saved AI prompt template
//   - HiddenPrompt: a marker hiding a prompt from the owner's picker
//   - UserSettings: one row of per-user preferences
//
// Values are treated as immutable once they are handed to the cache. Use
// Apply to derive an updated copy from a Patch.
//
// # Patches
//
// A Patch is a field-name keyed set of changes. Field names match the remote
// store's column names (see the Field* constants) so the same patch can be
// merged into a cached entity and sent to the remote adapter:
//
//	patch := domain.NotePatch{Title: &title}.Patch(time.Now())
//	updated := note.Apply(patch)
//
// # Placeholder IDs
//
// Entities created optimistically carry a placeholder id ("temp-" followed by
// a UUID) until the remote store returns the authoritative entity. Use
// IsPlaceholderID to tell them apart from server-issued ids.
package domain
