package vars

import (
	"sort"
	"strings"
	"sync"
)

// Scope identifies one of the variable namespaces. The three persisted scopes
// are independent mappings; ScopeDynamic is the generator registry and never
// holds stored entries.
type Scope int

const (
	ScopeExtracted Scope = iota
	ScopeCollection
	ScopeEnvironment
	ScopeDynamic
)

// priorityOrder is fixed and not configurable: extracted wins over
// collection, collection over environment, dynamic is last-resort.
var priorityOrder = [...]Scope{ScopeExtracted, ScopeCollection, ScopeEnvironment}

func (s Scope) String() string {
	switch s {
	case ScopeExtracted:
		return "extracted"
	case ScopeCollection:
		return "collection"
	case ScopeEnvironment:
		return "environment"
	case ScopeDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// ParseScope recognizes the explicit scope prefixes allowed in {{scope.key}}
// tokens. Only the three persisted scopes have prefixes; dynamic tokens use
// the $name form instead.
func ParseScope(name string) (Scope, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "extracted":
		return ScopeExtracted, true
	case "collection":
		return ScopeCollection, true
	case "environment", "env":
		return ScopeEnvironment, true
	default:
		return 0, false
	}
}

type Variable struct {
	Scope  Scope
	Key    string
	Value  string
	Secret bool
}

type scopeMap struct {
	mu      sync.RWMutex
	entries map[string]Variable
}

func newScopeMap() *scopeMap {
	return &scopeMap{entries: make(map[string]Variable)}
}

// Store holds the three persisted scopes. It is the only state shared across
// concurrent executions; each scope carries its own lock so script writes
// from simultaneous runs serialize without blocking unrelated scopes.
type Store struct {
	scopes [3]*scopeMap
}

func NewStore() *Store {
	return &Store{scopes: [3]*scopeMap{newScopeMap(), newScopeMap(), newScopeMap()}}
}

func (s *Store) scope(scope Scope) *scopeMap {
	switch scope {
	case ScopeExtracted, ScopeCollection, ScopeEnvironment:
		return s.scopes[scope]
	default:
		return nil
	}
}

func (s *Store) Get(scope Scope, key string) (string, bool) {
	v, ok := s.Lookup(scope, key)
	return v.Value, ok
}

func (s *Store) Lookup(scope Scope, key string) (Variable, bool) {
	sm := s.scope(scope)
	if sm == nil {
		return Variable{}, false
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	v, ok := sm.entries[key]
	return v, ok
}

func (s *Store) Set(scope Scope, key, value string) {
	s.SetVariable(Variable{Scope: scope, Key: key, Value: value})
}

func (s *Store) SetVariable(v Variable) {
	sm := s.scope(v.Scope)
	if sm == nil || strings.TrimSpace(v.Key) == "" {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.entries[v.Key] = v
}

func (s *Store) Unset(scope Scope, key string) bool {
	sm := s.scope(scope)
	if sm == nil {
		return false
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.entries[key]; !ok {
		return false
	}
	delete(sm.entries, key)
	return true
}

func (s *Store) Has(scope Scope, key string) bool {
	_, ok := s.Lookup(scope, key)
	return ok
}

func (s *Store) Clear(scope Scope) {
	sm := s.scope(scope)
	if sm == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.entries = make(map[string]Variable)
}

// ToMap copies one scope's key/value pairs. Secrets are included; redaction
// is a presentation concern of the caller.
func (s *Store) ToMap(scope Scope) map[string]string {
	sm := s.scope(scope)
	if sm == nil {
		return map[string]string{}
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make(map[string]string, len(sm.entries))
	for k, v := range sm.entries {
		out[k] = v.Value
	}
	return out
}

// ResolvePriority looks key up across the persisted scopes in the fixed
// priority order and reports which scope satisfied it.
func (s *Store) ResolvePriority(key string) (Variable, bool) {
	for _, scope := range priorityOrder {
		if v, ok := s.Lookup(scope, key); ok {
			return v, true
		}
	}
	return Variable{}, false
}

// Snapshot returns every stored variable sorted by scope then key, for
// persistence and debug views.
func (s *Store) Snapshot() []Variable {
	var out []Variable
	for _, scope := range priorityOrder {
		sm := s.scopes[scope]
		sm.mu.RLock()
		for _, v := range sm.entries {
			out = append(out, v)
		}
		sm.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].Key < out[j].Key
	})
	return out
}
