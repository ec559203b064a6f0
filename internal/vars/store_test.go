package vars

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func TestStoreScopesAreIndependent(t *testing.T) {
	store := NewStore()
	store.Set(ScopeEnvironment, "key", "env")
	store.Set(ScopeCollection, "key", "col")

	if v, ok := store.Get(ScopeEnvironment, "key"); !ok || v != "env" {
		t.Fatalf("environment lookup: %q %v", v, ok)
	}
	if v, ok := store.Get(ScopeCollection, "key"); !ok || v != "col" {
		t.Fatalf("collection lookup: %q %v", v, ok)
	}
	if _, ok := store.Get(ScopeExtracted, "key"); ok {
		t.Fatalf("extracted scope should be empty")
	}
}

func TestStoreUnsetAndHas(t *testing.T) {
	store := NewStore()
	store.Set(ScopeExtracted, "token", "abc")
	if !store.Has(ScopeExtracted, "token") {
		t.Fatalf("expected token present")
	}
	if !store.Unset(ScopeExtracted, "token") {
		t.Fatalf("unset should report removal")
	}
	if store.Unset(ScopeExtracted, "token") {
		t.Fatalf("second unset should be a no-op")
	}
	if store.Has(ScopeExtracted, "token") {
		t.Fatalf("token should be gone")
	}
}

func TestStoreResolvePriority(t *testing.T) {
	store := NewStore()
	store.Set(ScopeEnvironment, "k", "env")
	v, ok := store.ResolvePriority("k")
	if !ok || v.Scope != ScopeEnvironment {
		t.Fatalf("expected environment hit, got %+v %v", v, ok)
	}
	store.Set(ScopeCollection, "k", "col")
	if v, _ := store.ResolvePriority("k"); v.Scope != ScopeCollection {
		t.Fatalf("collection should win over environment, got %v", v.Scope)
	}
	store.Set(ScopeExtracted, "k", "ext")
	if v, _ := store.ResolvePriority("k"); v.Scope != ScopeExtracted {
		t.Fatalf("extracted should win over all, got %v", v.Scope)
	}
}

func TestStoreSecretFlagRoundTrip(t *testing.T) {
	store := NewStore()
	store.SetVariable(Variable{Scope: ScopeEnvironment, Key: "apiKey", Value: "s3cret", Secret: true})
	v, ok := store.Lookup(ScopeEnvironment, "apiKey")
	if !ok || !v.Secret || v.Value != "s3cret" {
		t.Fatalf("secret flag lost: %+v", v)
	}
}

func TestStoreConcurrentWritesDoNotTear(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Set(ScopeExtracted, "shared", fmt.Sprintf("writer-%d", i))
			store.Get(ScopeExtracted, "shared")
		}(i)
	}
	wg.Wait()

	v, ok := store.Get(ScopeExtracted, "shared")
	if !ok {
		t.Fatalf("expected a winning write")
	}
	// Last-write-wins is fine; a torn value is not.
	var n int
	if _, err := fmt.Sscanf(v, "writer-%d", &n); err != nil {
		t.Fatalf("torn or malformed value %q: %v", v, err)
	}
}

func TestParseScopeNames(t *testing.T) {
	cases := map[string]Scope{
		"extracted":   ScopeExtracted,
		"collection":  ScopeCollection,
		"environment": ScopeEnvironment,
		"env":         ScopeEnvironment,
		"Environment": ScopeEnvironment,
	}
	for name, want := range cases {
		got, ok := ParseScope(name)
		if !ok || got != want {
			t.Fatalf("ParseScope(%q) = %v %v", name, got, ok)
		}
	}
	if _, ok := ParseScope("dynamic"); ok {
		t.Fatalf("dynamic must not be an explicit token scope")
	}
	if _, ok := ParseScope("global"); ok {
		t.Fatalf("unknown scope accepted")
	}
}

func TestPersistRoundTrip(t *testing.T) {
	store := NewStore()
	store.SetVariable(Variable{Scope: ScopeExtracted, Key: "sessionId", Value: "xyz"})
	store.SetVariable(Variable{Scope: ScopeEnvironment, Key: "apiKey", Value: "k", Secret: true})

	path := filepath.Join(t.TempDir(), "vars", "variables.json")
	if err := SaveFile(path, store); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := NewStore()
	if err := LoadFile(path, restored); err != nil {
		t.Fatalf("load: %v", err)
	}
	if v, ok := restored.Get(ScopeExtracted, "sessionId"); !ok || v != "xyz" {
		t.Fatalf("extracted variable lost: %q %v", v, ok)
	}
	v, ok := restored.Lookup(ScopeEnvironment, "apiKey")
	if !ok || !v.Secret {
		t.Fatalf("secret environment variable lost: %+v", v)
	}
}

func TestLoadFileMissingIsFine(t *testing.T) {
	if err := LoadFile(filepath.Join(t.TempDir(), "absent.json"), NewStore()); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}

func TestGenerateDynamicKnownNames(t *testing.T) {
	for _, name := range []string{"$guid", "$timestamp", "$randomInt", "$randomEmail", "$RANDOMINT"} {
		value, ok := GenerateDynamic(name)
		if !ok || value == "" {
			t.Fatalf("generator %s failed: %q %v", name, value, ok)
		}
	}
	if _, ok := GenerateDynamic("$definitelyNot"); ok {
		t.Fatalf("unknown generator should miss")
	}
}

func TestGenerateDynamicRandomIntRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		value, _ := GenerateDynamic("$randomInt")
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			t.Fatalf("randomInt produced %q: %v", value, err)
		}
		if n < 0 || n > 1000 {
			t.Fatalf("randomInt out of range: %d", n)
		}
	}
}
