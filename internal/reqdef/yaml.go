package reqdef

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/restman-dev/restman/internal/errdef"
)

// FileDoc is the on-disk YAML shape for a workspace request file: a list of
// request definitions plus optional collection-scope variables.
type FileDoc struct {
	Name      string            `yaml:"name,omitempty"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Requests  []*Definition     `yaml:"requests"`
}

func ParseYAML(data []byte) (*FileDoc, error) {
	var doc FileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "parse request file")
	}
	for i, def := range doc.Requests {
		if def == nil {
			return nil, errdef.New(errdef.CodeParse, "request %d is empty", i+1)
		}
		if strings.TrimSpace(def.URL) == "" {
			return nil, errdef.New(errdef.CodeParse, "request %d (%s) has no url", i+1, def.Name)
		}
	}
	return &doc, nil
}

func LoadYAMLFile(path string) (*FileDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read request file %s", path)
	}
	return ParseYAML(data)
}

// Find returns the definition matching name, or the only request when name is
// empty and the file holds exactly one.
func (d *FileDoc) Find(name string) (*Definition, bool) {
	if strings.TrimSpace(name) == "" {
		if len(d.Requests) == 1 {
			return d.Requests[0], true
		}
		return nil, false
	}
	for _, def := range d.Requests {
		if strings.EqualFold(def.Name, name) {
			return def, true
		}
	}
	return nil, false
}
