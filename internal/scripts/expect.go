package scripts

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/dop251/goja"
)

// expectChain implements the chai-flavoured assertion DSL behind pm.expect
// and pm.response.to. Each link word hands back a chain object, terminal
// matchers throw an AssertionError on failure, and pm.test catches the
// throw and turns it into a failed assertion record.
type expectChain struct {
	b        *binder
	subject  goja.Value
	negated  bool
	deep     bool
	response bool
}

func (b *binder) expectValue() goja.Value {
	fn := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		chain := &expectChain{b: b, subject: call.Argument(0)}
		return chain.object()
	})
	obj := fn.ToObject(b.vm)
	_ = obj.Set("fail", func(call goja.FunctionCall) goja.Value {
		message := "expect.fail"
		if len(call.Arguments) > 0 {
			message = call.Argument(0).String()
		}
		b.throwError("AssertionError", message)
		return goja.Undefined()
	})
	return obj
}

func (b *binder) newResponseChain(subject goja.Value) goja.Value {
	chain := &expectChain{b: b, subject: subject, response: true}
	return chain.object()
}

var chainWords = []string{"to", "be", "been", "is", "that", "which", "and", "has", "have", "with", "at", "of"}

func (c *expectChain) object() *goja.Object {
	vm := c.b.vm
	obj := vm.NewObject()

	self := vm.ToValue(func() goja.Value { return obj })
	for _, word := range chainWords {
		_ = obj.DefineAccessorProperty(word, self, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}

	notGetter := vm.ToValue(func() goja.Value {
		next := *c
		next.negated = !c.negated
		return next.object()
	})
	_ = obj.DefineAccessorProperty("not", notGetter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	deepGetter := vm.ToValue(func() goja.Value {
		next := *c
		next.deep = true
		return next.object()
	})
	_ = obj.DefineAccessorProperty("deep", deepGetter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	terminal := func(name string, check func() (bool, string)) {
		getter := vm.ToValue(func() goja.Value {
			ok, desc := check()
			c.assert(ok, desc)
			return obj
		})
		_ = obj.DefineAccessorProperty(name, getter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}

	terminal("ok", func() (bool, string) {
		return c.subject.ToBoolean(), fmt.Sprintf("expected %s to be truthy", c.describe())
	})
	terminal("true", func() (bool, string) {
		exported, isBool := c.subject.Export().(bool)
		return isBool && exported, fmt.Sprintf("expected %s to be true", c.describe())
	})
	terminal("false", func() (bool, string) {
		exported, isBool := c.subject.Export().(bool)
		return isBool && !exported, fmt.Sprintf("expected %s to be false", c.describe())
	})
	terminal("null", func() (bool, string) {
		return goja.IsNull(c.subject), fmt.Sprintf("expected %s to be null", c.describe())
	})
	terminal("undefined", func() (bool, string) {
		return goja.IsUndefined(c.subject), fmt.Sprintf("expected %s to be undefined", c.describe())
	})
	terminal("empty", func() (bool, string) {
		return c.isEmpty(), fmt.Sprintf("expected %s to be empty", c.describe())
	})

	_ = obj.Set("equal", c.equalFn(obj, false))
	_ = obj.Set("equals", c.equalFn(obj, false))
	_ = obj.Set("eql", c.equalFn(obj, true))
	_ = obj.Set("a", c.typeFn(obj))
	_ = obj.Set("an", c.typeFn(obj))
	_ = obj.Set("above", c.compareFn(obj, "above", func(s, n float64) bool { return s > n }))
	_ = obj.Set("below", c.compareFn(obj, "below", func(s, n float64) bool { return s < n }))
	_ = obj.Set("least", c.compareFn(obj, "at least", func(s, n float64) bool { return s >= n }))
	_ = obj.Set("most", c.compareFn(obj, "at most", func(s, n float64) bool { return s <= n }))
	_ = obj.Set("within", func(call goja.FunctionCall) goja.Value {
		value := c.subject.ToFloat()
		lo := call.Argument(0).ToFloat()
		hi := call.Argument(1).ToFloat()
		c.assert(value >= lo && value <= hi,
			fmt.Sprintf("expected %s to be within %v..%v", c.describe(), lo, hi))
		return obj
	})
	_ = obj.Set("include", c.includeFn(obj))
	_ = obj.Set("contain", c.includeFn(obj))
	_ = obj.Set("property", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		subjectObj, isObj := c.subject.(*goja.Object)
		if !isObj {
			c.assert(false, fmt.Sprintf("expected %s to have property '%s'", c.describe(), name))
			return obj
		}
		value := subjectObj.Get(name)
		has := value != nil && !goja.IsUndefined(value)
		if has && len(call.Arguments) > 1 {
			has = reflect.DeepEqual(value.Export(), call.Argument(1).Export())
			c.assert(has, fmt.Sprintf("expected property '%s' of %s to equal %s",
				name, c.describe(), formatJSValue(call.Argument(1))))
		} else {
			c.assert(has, fmt.Sprintf("expected %s to have property '%s'", c.describe(), name))
		}
		// chai re-subjects the chain onto the property value
		next := *c
		next.subject = value
		return next.object()
	})
	_ = obj.Set("lengthOf", func(call goja.FunctionCall) goja.Value {
		want := int(call.Argument(0).ToInteger())
		length, ok := c.length()
		if !ok {
			c.b.throwError("AssertionError",
				fmt.Sprintf("expected %s to have a length", c.describe()))
		}
		c.assert(length == want,
			fmt.Sprintf("expected %s to have length %d but got %d", c.describe(), want, length))
		return obj
	})
	_ = obj.Set("match", func(call goja.FunctionCall) goja.Value {
		pattern := regexSource(call.Argument(0))
		re, err := regexp.Compile(pattern)
		if err != nil {
			c.b.throwError("AssertionError", fmt.Sprintf("invalid pattern %q: %v", pattern, err))
		}
		c.assert(re.MatchString(c.subject.String()),
			fmt.Sprintf("expected %s to match /%s/", c.describe(), pattern))
		return obj
	})

	if c.response {
		_ = obj.Set("status", func(call goja.FunctionCall) goja.Value {
			resp := c.b.resp
			arg := call.Argument(0)
			if code, isNumber := arg.Export().(int64); isNumber {
				c.assert(resp.Code == int(code),
					fmt.Sprintf("expected response to have status code %d but got %d", code, resp.Code))
			} else {
				want := arg.String()
				got := statusReason(resp.Status)
				c.assert(strings.EqualFold(got, want),
					fmt.Sprintf("expected response to have status reason %q but got %q", want, got))
			}
			return obj
		})
		_ = obj.Set("header", func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			resp := c.b.resp
			value := ""
			if resp.Headers != nil {
				value = resp.Headers.Get(name)
			}
			if len(call.Arguments) > 1 {
				want := call.Argument(1).String()
				c.assert(value == want,
					fmt.Sprintf("expected header %q to be %q but got %q", name, want, value))
			} else {
				c.assert(value != "",
					fmt.Sprintf("expected response to have header %q", name))
			}
			return obj
		})
		_ = obj.Set("body", func(call goja.FunctionCall) goja.Value {
			body := c.b.resp.Text()
			if len(call.Arguments) == 0 {
				c.assert(body != "", "expected response to have a body")
				return obj
			}
			want := call.Argument(0).String()
			c.assert(strings.Contains(body, want),
				fmt.Sprintf("expected response body to contain %q", want))
			return obj
		})
		_ = obj.Set("jsonBody", func(goja.FunctionCall) goja.Value {
			var parsed interface{}
			err := json.Unmarshal(c.b.resp.Body, &parsed)
			c.assert(err == nil, "expected response body to be valid JSON")
			return obj
		})
	}

	return obj
}

func (c *expectChain) equalFn(obj *goja.Object, alwaysDeep bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		expected := call.Argument(0)
		var equal bool
		if alwaysDeep || c.deep {
			equal = reflect.DeepEqual(c.subject.Export(), expected.Export())
		} else {
			equal = c.subject.StrictEquals(expected)
		}
		c.assert(equal, fmt.Sprintf("expected %s to equal %s", c.describe(), formatJSValue(expected)))
		return obj
	}
}

func (c *expectChain) typeFn(obj *goja.Object) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		want := strings.ToLower(call.Argument(0).String())
		got := jsTypeName(c.subject)
		c.assert(got == want, fmt.Sprintf("expected %s to be a %s but got %s", c.describe(), want, got))
		return obj
	}
}

func (c *expectChain) compareFn(obj *goja.Object, word string, cmp func(subject, bound float64) bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		bound := call.Argument(0).ToFloat()
		c.assert(cmp(c.subject.ToFloat(), bound),
			fmt.Sprintf("expected %s to be %s %v", c.describe(), word, bound))
		return obj
	}
}

func (c *expectChain) includeFn(obj *goja.Object) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		needle := call.Argument(0)
		found := false
		switch subject := c.subject.Export().(type) {
		case string:
			found = strings.Contains(subject, needle.String())
		case []interface{}:
			want := needle.Export()
			for _, item := range subject {
				if reflect.DeepEqual(item, want) {
					found = true
					break
				}
			}
		case map[string]interface{}:
			_, found = subject[needle.String()]
		}
		c.assert(found, fmt.Sprintf("expected %s to include %s", c.describe(), formatJSValue(needle)))
		return obj
	}
}

func (c *expectChain) assert(ok bool, message string) {
	if c.negated {
		if ok {
			c.b.throwError("AssertionError", strings.Replace(message, " to ", " not to ", 1))
		}
		return
	}
	if !ok {
		c.b.throwError("AssertionError", message)
	}
}

func (c *expectChain) describe() string {
	if c.response {
		return "response"
	}
	return formatJSValue(c.subject)
}

func (c *expectChain) isEmpty() bool {
	switch subject := c.subject.Export().(type) {
	case string:
		return subject == ""
	case []interface{}:
		return len(subject) == 0
	case map[string]interface{}:
		return len(subject) == 0
	case nil:
		return true
	}
	return false
}

func (c *expectChain) length() (int, bool) {
	switch subject := c.subject.Export().(type) {
	case string:
		return len(subject), true
	case []interface{}:
		return len(subject), true
	case map[string]interface{}:
		return len(subject), true
	}
	return 0, false
}

func jsTypeName(v goja.Value) string {
	if goja.IsNull(v) {
		return "null"
	}
	if goja.IsUndefined(v) {
		return "undefined"
	}
	switch v.Export().(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case []interface{}:
		return "array"
	case func(goja.FunctionCall) goja.Value:
		return "function"
	default:
		return "object"
	}
}

// regexSource accepts either a plain string or a JS RegExp object.
func regexSource(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		if src := obj.Get("source"); src != nil && !goja.IsUndefined(src) {
			return src.String()
		}
	}
	return v.String()
}

func formatJSValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	switch exported := v.Export().(type) {
	case string:
		return fmt.Sprintf("%q", exported)
	case map[string]interface{}, []interface{}:
		if data, err := json.Marshal(exported); err == nil {
			return string(data)
		}
	}
	return v.String()
}
