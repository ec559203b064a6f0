package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSettingsReturnsDefaultHandleWhenMissing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RESTMAN_CONFIG_DIR", dir)

	settings, handle, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}
	expectedPath := filepath.Join(dir, "settings.toml")
	if handle.Path != expectedPath {
		t.Fatalf("expected handle path %q, got %q", expectedPath, handle.Path)
	}
	if handle.Format != SettingsFormatTOML {
		t.Fatalf("expected format %q, got %q", SettingsFormatTOML, handle.Format)
	}
	if settings.ScriptTimeout.Std() != 5*time.Second {
		t.Fatalf("expected default script timeout, got %v", settings.ScriptTimeout.Std())
	}
	if !settings.FollowRedirects {
		t.Fatalf("expected redirects enabled by default")
	}
	if settings.HistoryPath != filepath.Join(dir, "history.json") {
		t.Fatalf("unexpected history path %q", settings.HistoryPath)
	}
}

func TestSaveAndLoadSettingsTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RESTMAN_CONFIG_DIR", dir)

	want := DefaultSettings()
	want.Proxy = "http://localhost:8080"
	want.ScriptTimeout = duration(9 * time.Second)
	if err := SaveSettings(want, SettingsHandle{}); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	got, handle, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got.Proxy != want.Proxy {
		t.Fatalf("expected proxy %q, got %q", want.Proxy, got.Proxy)
	}
	if got.ScriptTimeout.Std() != 9*time.Second {
		t.Fatalf("duration did not round-trip: %v", got.ScriptTimeout.Std())
	}
	if handle.Format != SettingsFormatTOML {
		t.Fatalf("expected format %q after save, got %q", SettingsFormatTOML, handle.Format)
	}
}

func TestLoadSettingsJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RESTMAN_CONFIG_DIR", dir)

	payload := `{
  "script_timeout": "2s",
  "http_timeout": "10s",
  "follow_redirects": false,
  "insecure": true,
  "proxy": "",
  "force_http2": false,
  "history_path": "",
  "history_limit": 50,
  "variables_path": ""
}`
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write json settings: %v", err)
	}

	got, handle, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got.ScriptTimeout.Std() != 2*time.Second || got.HistoryLimit != 50 {
		t.Fatalf("json settings not applied: %+v", got)
	}
	if !got.Insecure || got.FollowRedirects {
		t.Fatalf("boolean settings lost: %+v", got)
	}
	if handle.Format != SettingsFormatJSON {
		t.Fatalf("expected json format, got %q", handle.Format)
	}
	if handle.Path != path {
		t.Fatalf("expected handle path %q, got %q", path, handle.Path)
	}
}

func TestLoadSettingsRejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RESTMAN_CONFIG_DIR", dir)

	path := filepath.Join(dir, "settings.toml")
	if err := os.WriteFile(path, []byte("script_timeout = [broken"), 0o644); err != nil {
		t.Fatalf("write toml settings: %v", err)
	}
	if _, _, err := LoadSettings(); err == nil {
		t.Fatal("malformed settings must fail loudly")
	}
}
