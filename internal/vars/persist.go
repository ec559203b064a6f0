package vars

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/restman-dev/restman/internal/errdef"
)

// Persisted variables survive across sessions. Dynamic values never appear
// here: they have no stored identity.
type persistedVariable struct {
	Scope  string `json:"scope"`
	Key    string `json:"key"`
	Value  string `json:"value"`
	Secret bool   `json:"secret,omitempty"`
}

// SaveFile writes every stored variable to path, using the same
// tmp-then-rename dance the history store uses so a crash never leaves a
// half-written file.
func SaveFile(path string, store *Store) error {
	vars := store.Snapshot()
	out := make([]persistedVariable, 0, len(vars))
	for _, v := range vars {
		out = append(out, persistedVariable{
			Scope:  v.Scope.String(),
			Key:    v.Key,
			Value:  v.Value,
			Secret: v.Secret,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errdef.Wrap(errdef.CodeParse, err, "encode variables")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "create variables dir")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write variables tmp")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "replace variables file")
	}
	return nil
}

// LoadFile merges persisted variables into store. A missing file is not an
// error; a fresh profile simply has nothing saved yet.
func LoadFile(path string, store *Store) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errdef.Wrap(errdef.CodeFilesystem, err, "read variables file")
	}
	if len(data) == 0 {
		return nil
	}

	var entries []persistedVariable
	if err := json.Unmarshal(data, &entries); err != nil {
		return errdef.Wrap(errdef.CodeParse, err, "parse variables file")
	}
	for _, entry := range entries {
		scope, ok := ParseScope(entry.Scope)
		if !ok {
			continue
		}
		store.SetVariable(Variable{
			Scope:  scope,
			Key:    entry.Key,
			Value:  entry.Value,
			Secret: entry.Secret,
		})
	}
	return nil
}
