// Package mutation coordinates optimistic changes to notes, folders, prompts
// and user settings.
//
// Every mutation has two phases. The optimistic phase runs synchronously:
// input is validated, the change is applied to the cache and a Pending is
// returned, so readers see the new state before the remote store answers.
// The remote phase runs on its own goroutine through the retry controller.
// On success the cache is reconciled with the store's authoritative copy; on
// failure exactly this mutation's delta is rolled back and the classified
// error is sent to the notification sink.
//
// Lifecycle of a mutation:
//
//	Idle → OptimisticApplied → Committed
//	                         ↘ RolledBack
//
// Input that fails validation, or targets an entity that is unknown or still
// being created, never leaves Idle and never reaches the remote store.
//
// Auth failures end the session: the session's sign-out hooks discard the
// user's cache and a "Session expired" notice is sent.
//
// Example:
//
//	p := notes.CreateAsync(ctx, domain.NoteInput{Title: "Groceries"})
//	render(p.Optimistic()) // placeholder is visible immediately
//	note, err := p.Wait()  // authoritative note, or classified error
package mutation
