package scripts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/restman-dev/restman/internal/reqdef"
	"github.com/restman-dev/restman/internal/vars"
)

// binder wires the pm and console surfaces into one interpreter instance.
// Every API object is an explicitly enumerated function table; nothing is
// exposed through reflection, so script code can reach exactly what is
// listed here and nothing else.
type binder struct {
	vm     *goja.Runtime
	phase  Phase
	store  *vars.Store
	req    *reqdef.RequestContext
	resp   *reqdef.ResponseContext
	result *ExecutionResult
}

func (b *binder) bind() error {
	pm := b.vm.NewObject()

	if err := pm.Set("environment", b.scopeAPI(vars.ScopeEnvironment)); err != nil {
		return err
	}
	if err := pm.Set("collectionVariables", b.scopeAPI(vars.ScopeCollection)); err != nil {
		return err
	}
	if err := pm.Set("globals", b.scopeAPI(vars.ScopeExtracted)); err != nil {
		return err
	}
	if err := pm.Set("variables", b.mergedVariablesAPI()); err != nil {
		return err
	}
	if err := pm.Set("request", b.requestObject()); err != nil {
		return err
	}
	if err := pm.Set("test", b.pmTest); err != nil {
		return err
	}
	if err := pm.Set("expect", b.expectValue()); err != nil {
		return err
	}
	if err := pm.Set("info", map[string]interface{}{
		"eventName":   b.phase.String(),
		"requestName": b.requestName(),
	}); err != nil {
		return err
	}

	// pm.response is an accessor so that touching it before a response
	// exists throws for the script author instead of yielding undefined.
	respGetter := b.vm.ToValue(func() goja.Value {
		if b.resp == nil {
			b.throwError("ResponseNotAvailable",
				"pm.response is not available before the request is sent")
		}
		return b.responseObject()
	})
	if err := pm.DefineAccessorProperty(
		"response", respGetter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE,
	); err != nil {
		return err
	}

	if err := b.vm.Set("pm", pm); err != nil {
		return err
	}
	return b.bindConsole()
}

func (b *binder) requestName() string {
	if b.req == nil {
		return ""
	}
	return b.req.RequestName
}

// --- variables -------------------------------------------------------------

func (b *binder) scopeAPI(scope vars.Scope) map[string]interface{} {
	return map[string]interface{}{
		"get": func(call goja.FunctionCall) goja.Value {
			key := call.Argument(0).String()
			if value, ok := b.store.Get(scope, key); ok {
				return b.vm.ToValue(value)
			}
			return goja.Undefined()
		},
		"set": func(call goja.FunctionCall) goja.Value {
			key := call.Argument(0).String()
			if strings.TrimSpace(key) == "" {
				return goja.Undefined()
			}
			b.store.Set(scope, key, stringifyValue(call.Argument(1)))
			return goja.Undefined()
		},
		"unset": func(call goja.FunctionCall) goja.Value {
			b.store.Unset(scope, call.Argument(0).String())
			return goja.Undefined()
		},
		"has": func(call goja.FunctionCall) goja.Value {
			return b.vm.ToValue(b.store.Has(scope, call.Argument(0).String()))
		},
		"toObject": func(goja.FunctionCall) goja.Value {
			return b.vm.ToValue(b.store.ToMap(scope))
		},
		"clear": func(goja.FunctionCall) goja.Value {
			b.store.Clear(scope)
			return goja.Undefined()
		},
	}
}

// mergedVariablesAPI is the read-only priority view across all stored
// scopes. Writes go through the scope-specific objects.
func (b *binder) mergedVariablesAPI() map[string]interface{} {
	resolver := vars.NewResolver(b.store)
	return map[string]interface{}{
		"get": func(call goja.FunctionCall) goja.Value {
			if v, ok := b.store.ResolvePriority(call.Argument(0).String()); ok {
				return b.vm.ToValue(v.Value)
			}
			return goja.Undefined()
		},
		"has": func(call goja.FunctionCall) goja.Value {
			_, ok := b.store.ResolvePriority(call.Argument(0).String())
			return b.vm.ToValue(ok)
		},
		"toObject": func(goja.FunctionCall) goja.Value {
			merged := b.store.ToMap(vars.ScopeEnvironment)
			for k, v := range b.store.ToMap(vars.ScopeCollection) {
				merged[k] = v
			}
			for k, v := range b.store.ToMap(vars.ScopeExtracted) {
				merged[k] = v
			}
			return b.vm.ToValue(merged)
		},
		"replaceIn": func(call goja.FunctionCall) goja.Value {
			resolved, _ := resolver.Resolve(call.Argument(0).String())
			return b.vm.ToValue(resolved)
		},
	}
}

// --- request ---------------------------------------------------------------

func (b *binder) requireMutable(what string) {
	if b.phase != PhasePreRequest {
		b.throwError("Error", fmt.Sprintf("%s cannot be modified after the request was sent", what))
	}
}

func (b *binder) requestObject() *goja.Object {
	obj := b.vm.NewObject()

	urlGet := b.vm.ToValue(func() goja.Value { return b.vm.ToValue(b.req.URL) })
	urlSet := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		b.requireMutable("pm.request.url")
		b.req.URL = call.Argument(0).String()
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty("url", urlGet, urlSet, goja.FLAG_FALSE, goja.FLAG_TRUE)

	methodGet := b.vm.ToValue(func() goja.Value { return b.vm.ToValue(b.req.Method) })
	methodSet := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		b.requireMutable("pm.request.method")
		b.req.Method = strings.ToUpper(call.Argument(0).String())
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty("method", methodGet, methodSet, goja.FLAG_FALSE, goja.FLAG_TRUE)

	bodyGet := b.vm.ToValue(func() goja.Value {
		return b.vm.ToValue(map[string]interface{}{
			"mode": "raw",
			"raw":  b.req.Body.Text,
		})
	})
	bodySet := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		b.requireMutable("pm.request.body")
		arg := call.Argument(0)
		if obj, ok := arg.Export().(map[string]interface{}); ok {
			if raw, ok := obj["raw"].(string); ok {
				b.req.Body.Text = raw
				return goja.Undefined()
			}
		}
		b.req.Body.Text = arg.String()
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty("body", bodyGet, bodySet, goja.FLAG_FALSE, goja.FLAG_TRUE)

	_ = obj.Set("headers", b.requestHeadersAPI())
	return obj
}

func (b *binder) requestHeadersAPI() map[string]interface{} {
	headerArg := func(call goja.FunctionCall) (string, string) {
		arg := call.Argument(0)
		if m, ok := arg.Export().(map[string]interface{}); ok {
			key, _ := m["key"].(string)
			value := ""
			if raw, ok := m["value"]; ok {
				value = fmt.Sprintf("%v", raw)
			}
			return key, value
		}
		return arg.String(), call.Argument(1).String()
	}

	return map[string]interface{}{
		"get": func(call goja.FunctionCall) goja.Value {
			if value, ok := b.req.GetHeader(call.Argument(0).String()); ok {
				return b.vm.ToValue(value)
			}
			return goja.Null()
		},
		"has": func(call goja.FunctionCall) goja.Value {
			return b.vm.ToValue(b.req.HasHeader(call.Argument(0).String()))
		},
		"add": func(call goja.FunctionCall) goja.Value {
			b.requireMutable("pm.request.headers")
			key, value := headerArg(call)
			if key != "" {
				b.req.AddHeader(key, value)
			}
			return goja.Undefined()
		},
		"upsert": func(call goja.FunctionCall) goja.Value {
			b.requireMutable("pm.request.headers")
			key, value := headerArg(call)
			if key != "" {
				b.req.SetHeader(key, value)
			}
			return goja.Undefined()
		},
		"remove": func(call goja.FunctionCall) goja.Value {
			b.requireMutable("pm.request.headers")
			b.req.RemoveHeader(call.Argument(0).String())
			return goja.Undefined()
		},
		"toObject": func(goja.FunctionCall) goja.Value {
			out := make(map[string]string, len(b.req.Headers))
			for _, h := range b.req.Headers {
				out[h.Name] = h.Value
			}
			return b.vm.ToValue(out)
		},
	}
}

// --- response --------------------------------------------------------------

func (b *binder) responseObject() *goja.Object {
	resp := b.resp
	obj := b.vm.NewObject()

	_ = obj.Set("code", resp.Code)
	_ = obj.Set("status", statusReason(resp.Status))
	_ = obj.Set("responseTime", resp.Duration.Milliseconds())
	_ = obj.Set("responseSize", resp.Size)
	_ = obj.Set("text", func(goja.FunctionCall) goja.Value {
		return b.vm.ToValue(resp.Text())
	})
	_ = obj.Set("json", func(goja.FunctionCall) goja.Value {
		var parsed interface{}
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			b.throwError("JSONError", fmt.Sprintf("response body is not valid JSON: %v", err))
		}
		return b.vm.ToValue(parsed)
	})
	_ = obj.Set("headers", map[string]interface{}{
		"get": func(call goja.FunctionCall) goja.Value {
			if resp.Headers == nil {
				return goja.Null()
			}
			if value := resp.Headers.Get(call.Argument(0).String()); value != "" {
				return b.vm.ToValue(value)
			}
			return goja.Null()
		},
		"has": func(call goja.FunctionCall) goja.Value {
			if resp.Headers == nil {
				return b.vm.ToValue(false)
			}
			return b.vm.ToValue(resp.Headers.Get(call.Argument(0).String()) != "")
		},
		"toObject": func(goja.FunctionCall) goja.Value {
			out := map[string]string{}
			for name, values := range resp.Headers {
				out[strings.ToLower(name)] = strings.Join(values, ", ")
			}
			return b.vm.ToValue(out)
		},
	})

	// pm.response.to.have.status(...) is the most common Postman assertion;
	// the chain rides on the same expect machinery.
	toGetter := b.vm.ToValue(func() goja.Value {
		return b.newResponseChain(obj)
	})
	_ = obj.DefineAccessorProperty("to", toGetter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	return obj
}

// statusReason strips the numeric prefix from an http status line, turning
// "200 OK" into "OK" the way pm.response.status reads in Postman.
func statusReason(status string) string {
	parts := strings.SplitN(strings.TrimSpace(status), " ", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return status
}

// --- tests -----------------------------------------------------------------

func (b *binder) pmTest(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	record := AssertionRecord{Name: name, Passed: true}

	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		record.Passed = false
		record.Message = "pm.test requires a callback function"
		b.result.Assertions = append(b.result.Assertions, record)
		return goja.Undefined()
	}

	if _, err := fn(goja.Undefined()); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			// Timeout/cancellation must abort the whole script, not turn
			// into a failed test.
			panic(err)
		}
		record.Passed = false
		record.Message = exceptionMessage(err)
	}
	b.result.Assertions = append(b.result.Assertions, record)
	return goja.Undefined()
}

// --- console ---------------------------------------------------------------

func (b *binder) bindConsole() error {
	appendLine := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, stringifyValue(arg))
			}
			b.result.Console = append(b.result.Console, ConsoleLine{
				Level:   level,
				Message: strings.Join(parts, " "),
			})
			return goja.Undefined()
		}
	}
	console := map[string]func(goja.FunctionCall) goja.Value{
		"log":   appendLine("log"),
		"info":  appendLine("info"),
		"warn":  appendLine("warn"),
		"error": appendLine("error"),
	}
	return b.vm.Set("console", console)
}

// --- helpers ---------------------------------------------------------------

// throwError raises a catchable JS Error carrying name and message.
func (b *binder) throwError(name, message string) {
	ctorValue := b.vm.Get("Error")
	if ctor, ok := goja.AssertConstructor(ctorValue); ok {
		if errObj, err := ctor(nil, b.vm.ToValue(message)); err == nil {
			_ = errObj.Set("name", name)
			panic(errObj)
		}
	}
	panic(b.vm.ToValue(message))
}

func stringifyValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	switch exported := v.Export().(type) {
	case map[string]interface{}, []interface{}:
		if data, err := json.Marshal(exported); err == nil {
			return string(data)
		}
	}
	return v.String()
}

// exceptionMessage digs the plain message out of a goja exception so test
// records and results read like the script author wrote them.
func exceptionMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if obj, ok := ex.Value().(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				return msg.String()
			}
		}
		return ex.Value().String()
	}
	return err.Error()
}
