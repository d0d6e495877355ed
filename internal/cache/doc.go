// Package cache holds the client-side copy of each user's collections and
// applies optimistic mutations to it.
//
// # Collections
//
// A Store keeps one collection per Key (collection name plus owner). Each
// collection is an id-keyed arena with a separate ordered id set, newest
// entity first. Readers get snapshots; they never see partially applied
// mutations.
//
// # Optimistic mutations
//
// A mutation changes the cache before its remote call resolves:
//
//	tok, err := notes.ApplyOptimistic(key, "notes.create", func(tx *cache.Tx[domain.Note]) error {
//	    tx.Insert(placeholder)
//	    return nil
//	})
//
// The returned Token remembers, for every id the mutation touched, the value
// before the first write and the write version it left behind. When the
// remote call finishes the token is resolved exactly once:
//
//   - Commit swaps a placeholder for the authoritative entity in place
//   - Reconcile replaces an updated entity with the store's canonical copy
//   - Settle drops the token when the optimistic state is already final
//   - Rollback restores the before-images
//
// Rollback only restores ids whose version is still the one the mutation
// wrote. If a later mutation has written the same id since, that later write
// is kept (last writer wins), so rolling back one mutation never undoes
// another's change.
//
// # Operation log
//
// Every change is appended to a bounded OpLog that the status command and
// dashboard read.
package cache
