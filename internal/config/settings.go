package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	SettingsFormatTOML SettingsFormat = "toml"
	SettingsFormatJSON SettingsFormat = "json"
)

type Settings struct {
	ScriptTimeout   duration `json:"script_timeout"   toml:"script_timeout"`
	HTTPTimeout     duration `json:"http_timeout"     toml:"http_timeout"`
	FollowRedirects bool     `json:"follow_redirects" toml:"follow_redirects"`
	Insecure        bool     `json:"insecure"         toml:"insecure"`
	Proxy           string   `json:"proxy"            toml:"proxy"`
	ForceHTTP2      bool     `json:"force_http2"      toml:"force_http2"`
	HistoryPath     string   `json:"history_path"     toml:"history_path"`
	HistoryLimit    int      `json:"history_limit"    toml:"history_limit"`
	VariablesPath   string   `json:"variables_path"   toml:"variables_path"`
}

// duration round-trips "5s" style strings in both TOML and JSON.
type duration time.Duration

func (d duration) Std() time.Duration { return time.Duration(d) }

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *duration) UnmarshalText(data []byte) error {
	parsed, err := time.ParseDuration(string(data))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

func DefaultSettings() Settings {
	return Settings{
		ScriptTimeout:   duration(5 * time.Second),
		HTTPTimeout:     duration(30 * time.Second),
		FollowRedirects: true,
		HistoryLimit:    200,
	}
}

func (s Settings) normalised() Settings {
	defaults := DefaultSettings()
	if s.ScriptTimeout <= 0 {
		s.ScriptTimeout = defaults.ScriptTimeout
	}
	if s.HTTPTimeout <= 0 {
		s.HTTPTimeout = defaults.HTTPTimeout
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = defaults.HistoryLimit
	}
	if s.HistoryPath == "" {
		s.HistoryPath = filepath.Join(Dir(), "history.json")
	}
	if s.VariablesPath == "" {
		s.VariablesPath = filepath.Join(Dir(), "variables.json")
	}
	return s
}

// Dir is the per-user configuration directory. RESTMAN_CONFIG_DIR
// overrides it, which tests and portable installs rely on.
func Dir() string {
	if override := os.Getenv("RESTMAN_CONFIG_DIR"); override != "" {
		return override
	}
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "restman")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".restman"
	}
	return filepath.Join(home, ".restman")
}

type SettingsFormat string
type SettingsHandle struct {
	Path   string
	Format SettingsFormat
}

// tries loading TOML first, then JSON, then returns defaults if neither
// exists. parse errors fail immediately but missing files just skip to
// the next format.
func LoadSettings() (Settings, SettingsHandle, error) {
	dir := Dir()
	candidates := []SettingsHandle{
		{Path: filepath.Join(dir, "settings.toml"), Format: SettingsFormatTOML},
		{Path: filepath.Join(dir, "settings.json"), Format: SettingsFormatJSON},
	}

	var accumulated error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(
				accumulated,
				fmt.Errorf("read settings %q: %w", candidate.Path, err),
			)
			continue
		}

		settings, err := decodeSettings(data, candidate.Format)
		if err != nil {
			return Settings{}, SettingsHandle{}, fmt.Errorf(
				"parse settings %q: %w",
				candidate.Path,
				err,
			)
		}
		return settings.normalised(), candidate, nil
	}

	if accumulated != nil {
		return Settings{}, SettingsHandle{}, accumulated
	}

	return DefaultSettings().normalised(), SettingsHandle{
		Path:   candidates[0].Path,
		Format: SettingsFormatTOML,
	}, nil
}

func decodeSettings(data []byte, format SettingsFormat) (Settings, error) {
	var settings Settings
	switch format {
	case SettingsFormatTOML:
		if err := toml.Unmarshal(data, &settings); err != nil {
			return Settings{}, err
		}
	case SettingsFormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&settings); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, fmt.Errorf("unsupported settings format %q", format)
	}
	return settings, nil
}

func SaveSettings(settings Settings, handle SettingsHandle) error {
	settings = settings.normalised()
	path := handle.Path
	format := handle.Format
	if path == "" {
		path = filepath.Join(Dir(), "settings.toml")
	}
	if format == "" {
		format = SettingsFormatTOML
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure settings directory: %w", err)
	}

	var (
		data []byte
		err  error
	)

	switch format {
	case SettingsFormatTOML:
		data, err = toml.Marshal(settings)
	case SettingsFormatJSON:
		buffer := &bytes.Buffer{}
		encoder := json.NewEncoder(buffer)
		encoder.SetIndent("", "  ")
		if err = encoder.Encode(settings); err == nil {
			data = buffer.Bytes()
		}
	default:
		return fmt.Errorf("unsupported settings format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %q: %w", path, err)
	}
	return nil
}

// write to temp file then rename so readers never see partial/corrupt data.
// rename is atomic on most filesystems so the settings file is always valid.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".restman-settings-*.tmp")
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		closeErr := tmp.Close()
		if closeErr != nil {
			return errors.Join(err, closeErr)
		}
		return err
	}

	if err := tmp.Chmod(perm); err != nil {
		closeErr := tmp.Close()
		if closeErr != nil {
			return errors.Join(err, closeErr)
		}
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	return nil
}
