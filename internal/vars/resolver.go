package vars

import (
	"regexp"
	"strings"
)

// MaxDepth bounds recursive re-resolution. A chain that still holds tokens
// past this depth is treated as a cycle and reported unresolved.
const MaxDepth = 10

var (
	tokenPattern   = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
	dynamicPattern = regexp.MustCompile(`\$[A-Za-z][A-Za-z0-9]*`)
)

// Resolver substitutes {{scope.key}}, legacy {{key}} and $dynamic tokens in a
// string. Values substitute as literal text; whatever they produce is scanned
// again, so variables may reference other variables.
type Resolver struct {
	store *Store
}

func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the expanded text plus the names of tokens it could not
// satisfy. Unresolved tokens stay in the text verbatim so debug views can
// show exactly what was attempted.
func (r *Resolver) Resolve(text string) (string, []string) {
	st := &resolveState{
		store:    r.store,
		visiting: make(map[string]bool),
		seen:     make(map[string]bool),
	}
	return st.expand(text, 0), st.unresolved
}

// HasTokens reports whether text still contains substitutable {{...}} tokens.
func HasTokens(text string) bool {
	return tokenPattern.MatchString(text)
}

type resolveState struct {
	store      *Store
	visiting   map[string]bool
	seen       map[string]bool
	unresolved []string
}

func (st *resolveState) expand(text string, depth int) string {
	out := tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if name == "" {
			return match
		}
		if strings.HasPrefix(name, "$") {
			if value, ok := GenerateDynamic(name); ok {
				return value
			}
			st.miss(name)
			return match
		}
		return st.substitute(name, match, depth)
	})

	// Bare $name tokens resolve against the generator registry only. A $word
	// that names no generator is ordinary text, not an unresolved variable;
	// request bodies legitimately contain dollar signs.
	return dynamicPattern.ReplaceAllStringFunc(out, func(match string) string {
		if value, ok := GenerateDynamic(match); ok {
			return value
		}
		return match
	})
}

func (st *resolveState) substitute(name, match string, depth int) string {
	v, ok := st.lookup(name)
	if !ok {
		st.miss(name)
		return match
	}
	if !HasTokens(v.Value) {
		if dynamicPattern.MatchString(v.Value) {
			return st.expand(v.Value, depth)
		}
		return v.Value
	}
	if depth >= MaxDepth || st.visiting[name] {
		st.miss(name)
		return match
	}

	st.visiting[name] = true
	expanded := st.expand(v.Value, depth+1)
	delete(st.visiting, name)

	// An inner miss leaves tokens standing; report this variable too and keep
	// the original marker rather than a half-expanded value.
	if HasTokens(expanded) {
		st.miss(name)
		return match
	}
	return expanded
}

// Explicit {{scope.key}} binds to exactly that scope. A dotted name whose
// prefix is not a scope falls back to the legacy whole-name lookup; no
// implicit scopes are ever inferred.
func (st *resolveState) lookup(name string) (Variable, bool) {
	if idx := strings.Index(name, "."); idx > 0 {
		if scope, ok := ParseScope(name[:idx]); ok {
			key := strings.TrimSpace(name[idx+1:])
			if key == "" {
				return Variable{}, false
			}
			return st.store.Lookup(scope, key)
		}
	}
	return st.store.ResolvePriority(name)
}

func (st *resolveState) miss(name string) {
	if st.seen[name] {
		return
	}
	st.seen[name] = true
	st.unresolved = append(st.unresolved, name)
}
