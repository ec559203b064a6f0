package pipeline

import (
	"encoding/base64"
	"strings"

	"github.com/restman-dev/restman/internal/errdef"
	"github.com/restman-dev/restman/internal/reqdef"
	"github.com/restman-dev/restman/internal/vars"
)

// Builder produces a fully resolved request context from a definition.
// Resolution walks every templated field; the names that stay unresolved
// are collected on the context instead of failing one at a time, so the
// caller can report all of them in a single pass.
type Builder struct {
	resolver *vars.Resolver
}

func NewBuilder(store *vars.Store) *Builder {
	return &Builder{resolver: vars.NewResolver(store)}
}

// Resolve expands templates across the request context in place.
func (b *Builder) Resolve(req *reqdef.RequestContext) {
	var unresolved []string
	track := func(text string) string {
		resolved, missing := b.resolver.Resolve(text)
		unresolved = append(unresolved, missing...)
		return resolved
	}

	req.URL = track(req.URL)
	for i := range req.Headers {
		req.Headers[i].Name = track(req.Headers[i].Name)
		req.Headers[i].Value = track(req.Headers[i].Value)
	}
	for i := range req.Params {
		req.Params[i].Key = track(req.Params[i].Key)
		req.Params[i].Value = track(req.Params[i].Value)
	}
	req.Body.Text = track(req.Body.Text)

	if req.Auth != nil {
		for key, value := range req.Auth.Params {
			req.Auth.Params[key] = track(value)
		}
	}

	req.Unresolved = dedupe(unresolved)
}

// ApplyAuth folds the auth spec into concrete headers or query params.
// It runs after resolution so credentials may themselves be templated.
func (b *Builder) ApplyAuth(req *reqdef.RequestContext) error {
	if req.Auth == nil {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(req.Auth.Type)) {
	case "", "none":
		return nil
	case "basic":
		user := req.Auth.Params["username"]
		pass := req.Auth.Params["password"]
		token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		req.SetHeader("Authorization", "Basic "+token)
	case "bearer":
		token := strings.TrimSpace(req.Auth.Params["token"])
		if token == "" {
			return errdef.New(errdef.CodeParse, "bearer auth requires a token")
		}
		req.SetHeader("Authorization", "Bearer "+token)
	case "apikey":
		key := strings.TrimSpace(req.Auth.Params["key"])
		if key == "" {
			return errdef.New(errdef.CodeParse, "apikey auth requires a key name")
		}
		value := req.Auth.Params["value"]
		if strings.EqualFold(req.Auth.Params["in"], "query") {
			req.SetParam(key, value)
		} else {
			req.SetHeader(key, value)
		}
	default:
		return errdef.New(errdef.CodeParse, "unsupported auth type %q", req.Auth.Type)
	}
	return nil
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
