package reqdef

import (
	"net/http"
	"strings"
	"time"
)

// Definition is a stored, still-templated request as persistence hands it to
// the engine. The engine never reads or writes definitions on its own; they
// arrive from collection files, YAML workspaces or whatever the host uses.
type Definition struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`

	Method  string    `yaml:"method"`
	URL     string    `yaml:"url"`
	Headers []Header  `yaml:"headers,omitempty"`
	Params  []Param   `yaml:"params,omitempty"`
	Body    Body      `yaml:"body,omitempty"`
	Auth    *AuthSpec `yaml:"auth,omitempty"`

	PreScript  string `yaml:"preScript,omitempty"`
	PostScript string `yaml:"postScript,omitempty"`
}

type Header struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type Param struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type Body struct {
	Text        string `yaml:"text,omitempty"`
	ContentType string `yaml:"contentType,omitempty"`
}

type AuthSpec struct {
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params,omitempty"`
}

func (a *AuthSpec) Clone() *AuthSpec {
	if a == nil {
		return nil
	}
	params := make(map[string]string, len(a.Params))
	for k, v := range a.Params {
		params[k] = v
	}
	return &AuthSpec{Type: a.Type, Params: params}
}

// RequestContext is the mutable, execution-scoped form of a request. Exactly
// one in-flight execution owns it; it is never shared across executions.
// Headers keep declaration order and permit duplicate names.
type RequestContext struct {
	RequestName string
	Method      string
	URL         string
	Headers     []Header
	Params      []Param
	Body        Body
	Auth        *AuthSpec

	// Unresolved lists template tokens left standing after resolution.
	// Populated by the resolver pass; non-empty means the request must not
	// reach the transport.
	Unresolved []string
}

func NewRequestContext(def *Definition) *RequestContext {
	rc := &RequestContext{
		RequestName: def.Name,
		Method:      strings.ToUpper(strings.TrimSpace(def.Method)),
		URL:         def.URL,
		Body:        def.Body,
		Auth:        def.Auth.Clone(),
	}
	if rc.Method == "" {
		rc.Method = http.MethodGet
	}
	rc.Headers = append(rc.Headers, def.Headers...)
	rc.Params = append(rc.Params, def.Params...)
	return rc
}

// GetHeader returns the first value for name, case-insensitively.
func (rc *RequestContext) GetHeader(name string) (string, bool) {
	for _, h := range rc.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// SetHeader replaces every existing value for name with a single one,
// appending when the header was absent.
func (rc *RequestContext) SetHeader(name, value string) {
	kept := rc.Headers[:0]
	replaced := false
	for _, h := range rc.Headers {
		if strings.EqualFold(h.Name, name) {
			if !replaced {
				kept = append(kept, Header{Name: h.Name, Value: value})
				replaced = true
			}
			continue
		}
		kept = append(kept, h)
	}
	rc.Headers = kept
	if !replaced {
		rc.Headers = append(rc.Headers, Header{Name: name, Value: value})
	}
}

// AddHeader appends without touching existing values; duplicates are legal.
func (rc *RequestContext) AddHeader(name, value string) {
	rc.Headers = append(rc.Headers, Header{Name: name, Value: value})
}

func (rc *RequestContext) RemoveHeader(name string) {
	kept := rc.Headers[:0]
	for _, h := range rc.Headers {
		if strings.EqualFold(h.Name, name) {
			continue
		}
		kept = append(kept, h)
	}
	rc.Headers = kept
}

func (rc *RequestContext) HasHeader(name string) bool {
	_, ok := rc.GetHeader(name)
	return ok
}

func (rc *RequestContext) SetParam(key, value string) {
	for i, p := range rc.Params {
		if p.Key == key {
			rc.Params[i].Value = value
			return
		}
	}
	rc.Params = append(rc.Params, Param{Key: key, Value: value})
}

func (rc *RequestContext) RemoveParam(key string) {
	kept := rc.Params[:0]
	for _, p := range rc.Params {
		if p.Key == key {
			continue
		}
		kept = append(kept, p)
	}
	rc.Params = kept
}

func (rc *RequestContext) Clone() *RequestContext {
	if rc == nil {
		return nil
	}
	clone := *rc
	clone.Headers = append([]Header(nil), rc.Headers...)
	clone.Params = append([]Param(nil), rc.Params...)
	clone.Unresolved = append([]string(nil), rc.Unresolved...)
	clone.Auth = rc.Auth.Clone()
	return &clone
}

// ResponseContext is immutable once the transport hands it back. A failed
// send still yields one (with Failed set) so post-scripts and debug views can
// inspect what came of the attempt.
type ResponseContext struct {
	Status       string
	Code         int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	Size         int64
	EffectiveURL string

	// Failed marks a synthetic context produced for a transport-level
	// failure; TransportError carries the reason.
	Failed         bool
	TransportError string
}

func (resp *ResponseContext) Text() string {
	if resp == nil {
		return ""
	}
	return string(resp.Body)
}
