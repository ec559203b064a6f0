package postman

import (
	"encoding/json"
	"net/url"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/restman-dev/restman/internal/errdef"
	"github.com/restman-dev/restman/internal/reqdef"
	"github.com/restman-dev/restman/internal/vars"
)

// collectionSchema checks the structural minimum before decoding: a named
// collection pointing at a v2 schema with an item array. Full schema
// validation is Postman's job; this catches the common case of feeding a
// v1 export or a random JSON file to the importer.
const collectionSchema = `{
	"type": "object",
	"required": ["info", "item"],
	"properties": {
		"info": {
			"type": "object",
			"required": ["name", "schema"],
			"properties": {
				"name": {"type": "string"},
				"schema": {"type": "string", "pattern": "v2"}
			}
		},
		"item": {"type": "array"}
	}
}`

func ParseCollection(data []byte) (*Collection, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(collectionSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "validate collection")
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return nil, errdef.New(
			errdef.CodeParse,
			"not a v2 postman collection: %s", strings.Join(messages, "; "),
		)
	}

	var collection Collection
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "decode collection")
	}
	return &collection, nil
}

func LoadCollectionFile(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read collection %s", path)
	}
	return ParseCollection(data)
}

// Flatten walks the folder tree and returns executable definitions in
// document order, plus warnings for request parts the importer could not
// carry over. Folder names prefix the request name with " / " so two
// "Get user" leaves in different folders stay distinguishable.
func (c *Collection) Flatten() ([]*reqdef.Definition, []string) {
	var defs []*reqdef.Definition
	var warnings []string
	collectionPre, collectionPost := splitEvents(c.Events)
	walkItems(c.Items, "", c.Auth, collectionPre, collectionPost, &defs, &warnings)
	return defs, warnings
}

func walkItems(items []Item, prefix string, inheritedAuth *Auth, pre, post string, out *[]*reqdef.Definition, warnings *[]string) {
	for _, item := range items {
		name := item.Name
		if prefix != "" {
			name = prefix + " / " + item.Name
		}
		if len(item.Items) > 0 {
			walkItems(item.Items, name, inheritedAuth, pre, post, out, warnings)
			continue
		}
		if item.Request == nil {
			continue
		}
		*out = append(*out, buildDefinition(name, item, inheritedAuth, pre, post, warnings))
	}
}

func buildDefinition(name string, item Item, inheritedAuth *Auth, collectionPre, collectionPost string, warnings *[]string) *reqdef.Definition {
	req := item.Request
	def := &reqdef.Definition{
		Name:   name,
		Method: strings.ToUpper(req.Method),
		URL:    req.URL.Raw,
	}

	for _, header := range req.Header {
		if header.Disabled {
			continue
		}
		def.Headers = append(def.Headers, reqdef.Header{Name: header.Key, Value: header.Value})
	}
	inRaw := rawQueryKeys(req.URL.Raw)
	for _, query := range req.URL.Query {
		if query.Disabled || inRaw[query.Key] {
			continue
		}
		def.Params = append(def.Params, reqdef.Param{Key: query.Key, Value: query.Value})
	}

	if req.Body != nil {
		body, note := convertBody(req.Body)
		def.Body = body
		if note != "" {
			*warnings = append(*warnings, name+": "+note)
		}
	}

	auth := req.Auth
	if auth == nil {
		auth = inheritedAuth
	}
	def.Auth = convertAuth(auth)

	itemPre, itemPost := splitEvents(item.Events)
	def.PreScript = joinScripts(collectionPre, itemPre)
	def.PostScript = joinScripts(collectionPost, itemPost)
	return def
}

// rawQueryKeys lists the parameter names already spelled out in the raw URL.
// Postman exports repeat structured query entries there; only an exact key
// match counts as a duplicate. Raw URLs often hold template tokens, so the
// query string is split by hand instead of url.ParseQuery.
func rawQueryKeys(raw string) map[string]bool {
	_, qs, ok := strings.Cut(raw, "?")
	if !ok {
		return nil
	}
	keys := make(map[string]bool)
	for _, pair := range strings.Split(qs, "&") {
		name, _, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if name != "" {
			keys[name] = true
		}
	}
	return keys
}

func convertBody(body *Body) (reqdef.Body, string) {
	switch body.Mode {
	case "raw", "":
		contentType := ""
		if body.Options != nil {
			switch strings.ToLower(body.Options.Raw.Language) {
			case "json":
				contentType = "application/json"
			case "xml":
				contentType = "application/xml"
			case "text":
				contentType = "text/plain"
			}
		}
		return reqdef.Body{Text: body.Raw, ContentType: contentType}, ""
	case "urlencoded":
		values := url.Values{}
		for _, field := range body.URLEncoded {
			if field.Disabled {
				continue
			}
			values.Add(field.Key, field.Value)
		}
		return reqdef.Body{
			Text:        values.Encode(),
			ContentType: "application/x-www-form-urlencoded",
		}, ""
	default:
		// formdata and file bodies need multipart streaming, out of reach
		// for a text-template pipeline; keep the raw text if any.
		return reqdef.Body{Text: body.Raw}, body.Mode + " body not imported"
	}
}

func convertAuth(auth *Auth) *reqdef.AuthSpec {
	if auth == nil {
		return nil
	}
	switch strings.ToLower(auth.Type) {
	case "basic":
		return &reqdef.AuthSpec{
			Type: "basic",
			Params: map[string]string{
				"username": auth.param(auth.Basic, "username"),
				"password": auth.param(auth.Basic, "password"),
			},
		}
	case "bearer":
		return &reqdef.AuthSpec{
			Type: "bearer",
			Params: map[string]string{
				"token": auth.param(auth.Bearer, "token"),
			},
		}
	case "apikey":
		return &reqdef.AuthSpec{
			Type: "apikey",
			Params: map[string]string{
				"key":   auth.param(auth.APIKey, "key"),
				"value": auth.param(auth.APIKey, "value"),
				"in":    auth.param(auth.APIKey, "in"),
			},
		}
	default:
		return nil
	}
}

func splitEvents(events []Event) (pre, post string) {
	for _, event := range events {
		switch event.Listen {
		case "prerequest":
			pre = joinScripts(pre, event.Script.Source())
		case "test":
			post = joinScripts(post, event.Script.Source())
		}
	}
	return pre, post
}

func joinScripts(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "\n")
}

// ApplyVariables seeds the collection scope from collection-level variables.
func (c *Collection) ApplyVariables(store *vars.Store) {
	for _, variable := range c.Variables {
		if strings.TrimSpace(variable.Key) == "" {
			continue
		}
		store.SetVariable(vars.Variable{
			Scope:  vars.ScopeCollection,
			Key:    variable.Key,
			Value:  variable.Value,
			Secret: strings.EqualFold(variable.Type, "secret"),
		})
	}
}

func ParseEnvironment(data []byte) (*Environment, error) {
	var env Environment
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "decode environment")
	}
	if env.Name == "" && len(env.Values) == 0 {
		return nil, errdef.New(errdef.CodeParse, "not a postman environment export")
	}
	return &env, nil
}

func LoadEnvironmentFile(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read environment %s", path)
	}
	return ParseEnvironment(data)
}

// ApplyValues seeds the environment scope, skipping disabled entries.
func (e *Environment) ApplyValues(store *vars.Store) {
	for _, value := range e.Values {
		if !value.IsEnabled() || strings.TrimSpace(value.Key) == "" {
			continue
		}
		store.SetVariable(vars.Variable{
			Scope:  vars.ScopeEnvironment,
			Key:    value.Key,
			Value:  value.Value,
			Secret: value.IsSecret(),
		})
	}
}
