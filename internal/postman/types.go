package postman

import (
	"encoding/json"
	"strings"
)

// Collection models the subset of the Postman Collection v2.1 format the
// importer understands. Folders nest arbitrarily; anything with a request
// is a leaf.
type Collection struct {
	Info      Info       `json:"info"`
	Items     []Item     `json:"item"`
	Events    []Event    `json:"event,omitempty"`
	Variables []Variable `json:"variable,omitempty"`
	Auth      *Auth      `json:"auth,omitempty"`
}

type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Schema      string `json:"schema"`
}

type Item struct {
	Name    string   `json:"name"`
	Request *Request `json:"request,omitempty"`
	Items   []Item   `json:"item,omitempty"`
	Events  []Event  `json:"event,omitempty"`
}

type Request struct {
	Method string   `json:"method"`
	URL    URL      `json:"url"`
	Header []Header `json:"header,omitempty"`
	Body   *Body    `json:"body,omitempty"`
	Auth   *Auth    `json:"auth,omitempty"`
}

type Header struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Body struct {
	Mode       string      `json:"mode"`
	Raw        string      `json:"raw,omitempty"`
	URLEncoded []FormField `json:"urlencoded,omitempty"`
	FormData   []FormField `json:"formdata,omitempty"`
	Options    *BodyOpts   `json:"options,omitempty"`
}

type BodyOpts struct {
	Raw struct {
		Language string `json:"language,omitempty"`
	} `json:"raw,omitempty"`
}

type FormField struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Auth struct {
	Type   string      `json:"type"`
	Basic  []AuthParam `json:"basic,omitempty"`
	Bearer []AuthParam `json:"bearer,omitempty"`
	APIKey []AuthParam `json:"apikey,omitempty"`
}

type AuthParam struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

func (a *Auth) param(params []AuthParam, key string) string {
	for _, p := range params {
		if strings.EqualFold(p.Key, key) {
			if s, ok := p.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

type Event struct {
	Listen string `json:"listen"`
	Script Script `json:"script"`
}

type Script struct {
	Exec []string `json:"exec"`
}

// UnmarshalJSON accepts both the array form and a single string for exec.
func (s *Script) UnmarshalJSON(data []byte) error {
	var wrapper struct {
		Exec json.RawMessage `json:"exec"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	if len(wrapper.Exec) == 0 {
		return nil
	}
	var lines []string
	if err := json.Unmarshal(wrapper.Exec, &lines); err == nil {
		s.Exec = lines
		return nil
	}
	var single string
	if err := json.Unmarshal(wrapper.Exec, &single); err != nil {
		return err
	}
	s.Exec = []string{single}
	return nil
}

func (s Script) Source() string {
	return strings.Join(s.Exec, "\n")
}

type Variable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// URL appears in the wild as both a bare string and a structured object;
// only the raw form matters to the resolver, queries ride along.
type URL struct {
	Raw   string      `json:"raw"`
	Query []FormField `json:"query,omitempty"`
}

func (u *URL) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		u.Raw = raw
		return nil
	}
	type alias URL
	var structured alias
	if err := json.Unmarshal(data, &structured); err != nil {
		return err
	}
	*u = URL(structured)
	return nil
}

// Environment is the exported Postman environment file format.
type Environment struct {
	Name   string     `json:"name"`
	Values []EnvValue `json:"values"`
}

type EnvValue struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled *bool  `json:"enabled,omitempty"`
	Type    string `json:"type,omitempty"`
}

func (v EnvValue) IsEnabled() bool {
	return v.Enabled == nil || *v.Enabled
}

func (v EnvValue) IsSecret() bool {
	return strings.EqualFold(v.Type, "secret")
}
