package vars

import (
	"github.com/joho/godotenv"

	"github.com/restman-dev/restman/internal/errdef"
)

// LoadDotEnv seeds the environment scope from a dotenv file. Values loaded
// this way overwrite existing environment entries, matching how selecting an
// environment replaces the previous one.
func LoadDotEnv(path string, store *Store) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "read env file %s", path)
	}
	for key, value := range values {
		store.Set(ScopeEnvironment, key, value)
	}
	return nil
}
