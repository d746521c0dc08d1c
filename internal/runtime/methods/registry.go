// Package methods maps fully-qualified method names ("<namespace>.<method>")
// to the callables bound to them.
//
// The registry is safe for concurrent use but deliberately takes no lock
// spanning several operations: a lookup racing an Unregister for the same key
// may still return the entry being removed.
package methods

import (
	"context"
	"sort"

	"github.com/alphadose/haxmap"
)

// Func is a callable exposed through the broker.
type Func func(ctx context.Context, args ...any) (any, error)

// Owner identifies the registration that installed an entry. Entries are only
// removed by the owner that installed them, so one service replacing another's
// method is not undone when the first one is destroyed.
type Owner struct {
	name string
}

// NewOwner returns a fresh owner token labelled with name.
func NewOwner(name string) *Owner {
	return &Owner{name: name}
}

// Name returns the label the owner was created with.
func (o *Owner) Name() string {
	if o == nil {
		return ""
	}
	return o.name
}

// Entry is one installed method.
type Entry struct {
	Key       string
	Namespace string
	Name      string
	Owner     *Owner
	Fn        Func
}

// Key builds the composite key for a namespace and method name.
func Key(namespace, name string) string {
	return namespace + "." + name
}

// Registry holds the installed methods of one broker.
type Registry struct {
	entries *haxmap.Map[string, *Entry]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: haxmap.New[string, *Entry]()}
}

// Register stores fn under namespace.name, silently replacing any previous
// entry with the same key.
func (r *Registry) Register(namespace, name string, owner *Owner, fn Func) {
	key := Key(namespace, name)
	r.entries.Set(key, &Entry{
		Key:       key,
		Namespace: namespace,
		Name:      name,
		Owner:     owner,
		Fn:        fn,
	})
}

// Unregister removes namespace.name when it is currently held by owner. A nil
// owner removes the entry regardless of who installed it. Absent keys are a
// no-op. It reports whether an entry was removed.
func (r *Registry) Unregister(namespace, name string, owner *Owner) bool {
	key := Key(namespace, name)
	entry, ok := r.entries.Get(key)
	if !ok {
		return false
	}
	if owner != nil && entry.Owner != owner {
		return false
	}
	r.entries.Del(key)
	return true
}

// Resolve returns the callable bound to namespace.name.
func (r *Registry) Resolve(namespace, name string) (Func, bool) {
	return r.ResolveKey(Key(namespace, name))
}

// ResolveKey returns the callable stored under a composite key.
func (r *Registry) ResolveKey(key string) (Func, bool) {
	entry, ok := r.entries.Get(key)
	if !ok || entry == nil {
		return nil, false
	}
	return entry.Fn, true
}

// Lookup returns the full entry stored under key.
func (r *Registry) Lookup(key string) (Entry, bool) {
	entry, ok := r.entries.Get(key)
	if !ok || entry == nil {
		return Entry{}, false
	}
	return *entry, true
}

// Keys returns every installed key in lexical order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, r.entries.Len())
	r.entries.ForEach(func(key string, _ *Entry) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}

// Len returns the number of installed methods.
func (r *Registry) Len() int {
	return int(r.entries.Len())
}
