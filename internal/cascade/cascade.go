// Package cascade keeps dependent collections consistent when an entity
// changes.
//
// A Rule runs in two halves. Begin applies the local half to the cache and
// returns a Change; the caller then runs Change.Remote and, depending on the
// outcome, Commit or Rollback. The local half of every collection a rule
// touches is undone together, so the cache never shows a folder deletion
// without its detached notes or the reverse.
//
// Rules are registered per entity and event:
//
//	reg := cascade.NewRegistry()
//	del, restore := cascade.NewFolderRules(cfg)
//	reg.Register(cache.CollectionFolders, cascade.EventDelete, del)
//	reg.Register(cache.CollectionFolders, cascade.EventRestore, restore)
package cascade

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Event is the kind of change a rule reacts to.
type Event string

const (
	EventDelete  Event = "delete"
	EventRestore Event = "restore"
)

// Rule propagates a change of one entity to its dependents.
type Rule interface {
	// Name identifies the rule in logs and status output.
	Name() string

	// Begin applies the local half of the change for entity id of owner.
	Begin(owner, id string, now time.Time) (*Change, error)
}

// Change is a rule application whose remote half has not run yet.
type Change struct {
	Rule     string
	EntityID string
	Affected []string // dependent ids the change touched
	Noop     bool     // nothing to do; Remote, Commit and Rollback are no-ops

	remote   func(ctx context.Context) error
	commit   func()
	rollback func()
	once     sync.Once
}

// Remote runs the remote half.
func (c *Change) Remote(ctx context.Context) error {
	if c.Noop || c.remote == nil {
		return nil
	}
	return c.remote(ctx)
}

// Commit settles the local half after a successful remote half.
func (c *Change) Commit() {
	c.once.Do(func() {
		if c.commit != nil {
			c.commit()
		}
	})
}

// Rollback undoes the local half after a failed remote half.
func (c *Change) Rollback() {
	c.once.Do(func() {
		if c.rollback != nil {
			c.rollback()
		}
	})
}

type registryKey struct {
	entity string
	event  Event
}

// Registry maps (entity, event) pairs to rules.
type Registry struct {
	mu    sync.RWMutex
	rules map[registryKey]Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[registryKey]Rule)}
}

// Register installs r for entity and event, replacing any previous rule.
func (r *Registry) Register(entity string, event Event, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[registryKey{entity, event}] = rule
}

// Lookup returns the rule for entity and event.
func (r *Registry) Lookup(entity string, event Event) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[registryKey{entity, event}]
	return rule, ok
}

// Describe lists the registered rules as "entity.event: name", sorted.
func (r *Registry) Describe() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rules))
	for k, rule := range r.rules {
		out = append(out, fmt.Sprintf("%s.%s: %s", k.entity, k.event, rule.Name()))
	}
	sort.Strings(out)
	return out
}
