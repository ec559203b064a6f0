package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/restman-dev/restman/internal/errdef"
	"github.com/restman-dev/restman/internal/pipeline"
	"github.com/restman-dev/restman/internal/reqdef"
	"github.com/restman-dev/restman/internal/scripts"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func tempStore(t *testing.T, max int) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "history.json"), max)
}

func TestAppendAndReload(t *testing.T) {
	store := tempStore(t, 10)

	entry := Entry{
		ID:          "1",
		ExecutedAt:  time.Now(),
		RequestName: "login",
		Method:      "POST",
		URL:         "https://api.test/login",
		Status:      "200 OK",
		StatusCode:  200,
	}
	if err := store.Append(entry); err != nil {
		t.Fatalf("append: %v", err)
	}

	reloaded := NewStore(store.path, 10)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	entries := reloaded.Entries()
	if len(entries) != 1 || entries[0].RequestName != "login" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestAppendTrimsToLimit(t *testing.T) {
	store := tempStore(t, 3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		err := store.Append(Entry{
			ID:         string(rune('a' + i)),
			ExecutedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	entries := store.Entries()
	if len(entries) != 3 {
		t.Fatalf("want 3 entries, got %d", len(entries))
	}
	if entries[0].ID != "e" {
		t.Fatalf("newest entry should survive the trim, got %q", entries[0].ID)
	}
}

func TestDelete(t *testing.T) {
	store := tempStore(t, 10)
	_ = store.Append(Entry{ID: "keep", ExecutedAt: time.Now()})
	_ = store.Append(Entry{ID: "drop", ExecutedAt: time.Now()})

	ok, err := store.Delete("drop")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	ok, err = store.Delete("missing")
	if err != nil || ok {
		t.Fatalf("deleting a missing id must be a no-op: ok=%v err=%v", ok, err)
	}
	if entries := store.Entries(); len(entries) != 1 || entries[0].ID != "keep" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestByRequestMatchesNameOrURL(t *testing.T) {
	store := tempStore(t, 10)
	_ = store.Append(Entry{ID: "1", RequestName: "Login", URL: "https://a.test/login", ExecutedAt: time.Now()})
	_ = store.Append(Entry{ID: "2", RequestName: "other", URL: "https://a.test/other", ExecutedAt: time.Now()})

	if got := store.ByRequest("login"); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("name match failed: %+v", got)
	}
	if got := store.ByRequest("https://a.test/other"); len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("url match failed: %+v", got)
	}
	if got := store.ByRequest("  "); got != nil {
		t.Fatalf("blank identifier must match nothing, got %+v", got)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	store := tempStore(t, 10)
	if err := writeFile(store.path, "{not json"); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	err := store.Load()
	if err == nil {
		t.Fatal("corrupt history must error")
	}
	if errdef.CodeOf(err) != errdef.CodeHistory {
		t.Fatalf("wrong code: %v", errdef.CodeOf(err))
	}
}

func TestNewEntrySummarizesResult(t *testing.T) {
	body := strings.Repeat("x", 2*snippetLimit)
	result := &pipeline.Result{
		State: pipeline.StateCompleted,
		Request: reqdef.NewRequestContext(&reqdef.Definition{
			Name:   "big",
			Method: "GET",
			URL:    "https://api.test/big",
		}),
		Response: &reqdef.ResponseContext{
			Status: "200 OK",
			Code:   200,
			Body:   []byte(body),
		},
		Assertions: []scripts.AssertionRecord{
			{Name: "a", Passed: true},
			{Name: "b", Passed: false},
		},
		Duration: 80 * time.Millisecond,
	}

	entry := NewEntry(result)
	if entry.ID == "" {
		t.Fatal("entry needs an id")
	}
	if entry.RequestName != "big" || entry.StatusCode != 200 {
		t.Fatalf("summary wrong: %+v", entry)
	}
	if len(entry.BodySnippet) != snippetLimit {
		t.Fatalf("snippet not truncated: %d", len(entry.BodySnippet))
	}
	if entry.AssertionsPassed != 1 || entry.AssertionsFailed != 1 {
		t.Fatalf("assertion counts wrong: %+v", entry)
	}
}
