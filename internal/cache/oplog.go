package cache

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// OpKind is the kind of change recorded in the operation log.
type OpKind string

const (
	OpLoad     OpKind = "load"
	OpInsert   OpKind = "insert"
	OpUpdate   OpKind = "update"
	OpRemove   OpKind = "remove"
	OpCommit   OpKind = "commit"
	OpRollback OpKind = "rollback"
	OpDiscard  OpKind = "discard"
)

// DefaultOpLogSize is the number of entries an OpLog retains.
const DefaultOpLogSize = 512

// OpLogEntry is a single change applied to the cache.
type OpLogEntry struct {
	// Seq increases by one for every entry and is never reused.
	Seq uint64

	// Kind is what happened.
	Kind OpKind

	// Key identifies the collection that changed.
	Key Key

	// ID is the entity that changed, empty for collection-wide operations.
	ID string

	// Mutation names the mutation that caused the change, e.g. "notes.create".
	Mutation string

	// Timestamp is when the change was applied.
	Timestamp time.Time
}

// String renders the entry as one log line.
func (e OpLogEntry) String() string {
	s := fmt.Sprintf("%6d %s %-8s %s", e.Seq, e.Timestamp.Format("15:04:05.000"), e.Kind, e.Key)
	if e.ID != "" {
		s += " " + e.ID
	}
	if e.Mutation != "" {
		s += " (" + e.Mutation + ")"
	}
	return s
}

// OpLog is a bounded, append-only record of cache changes. Old entries are
// dropped once the log is full.
type OpLog struct {
	mu      sync.Mutex
	entries []OpLogEntry
	size    int
	seq     uint64
}

// NewOpLog returns a log retaining up to size entries.
func NewOpLog(size int) *OpLog {
	if size <= 0 {
		size = DefaultOpLogSize
	}
	return &OpLog{size: size}
}

// Append records a change and returns its sequence number.
func (l *OpLog) Append(kind OpKind, key Key, id, mutation string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.entries = append(l.entries, OpLogEntry{
		Seq:       l.seq,
		Kind:      kind,
		Key:       key,
		ID:        id,
		Mutation:  mutation,
		Timestamp: time.Now(),
	})
	if over := len(l.entries) - l.size; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	return l.seq
}

// LastSeq returns the sequence number of the newest entry.
func (l *OpLog) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Tail returns up to n of the newest entries, oldest first.
func (l *OpLog) Tail(n int) []OpLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	return append([]OpLogEntry(nil), l.entries[len(l.entries)-n:]...)
}

// Since returns the entries newer than lastSeen, oldest first. If lastSeen
// has already been dropped from the log, every retained entry is returned.
func (l *OpLog) Since(lastSeen uint64) []OpLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.Seq > lastSeen {
			return append([]OpLogEntry(nil), l.entries[i:]...)
		}
	}
	return nil
}

// WriteTo writes the retained entries, one per line.
func (l *OpLog) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range l.Tail(0) {
		n, err := fmt.Fprintln(w, e.String())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// OpLogCallback receives new entries in chronological order. Errors are
// passed to the watcher's error handler and watching continues.
type OpLogCallback func(entries []OpLogEntry) error

// WatchOpLog polls log every interval and hands new entries to callback
// until ctx is cancelled. It starts after the entry that is newest when it
// is called.
func WatchOpLog(ctx context.Context, log *OpLog, interval time.Duration, callback OpLogCallback, onError func(error)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	lastSeen := log.LastSeq()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			entries := log.Since(lastSeen)
			if len(entries) == 0 {
				continue
			}
			lastSeen = entries[len(entries)-1].Seq
			if err := callback(entries); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
