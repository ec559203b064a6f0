package scripts

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/restman-dev/restman/internal/errdef"
	"github.com/restman-dev/restman/internal/reqdef"
	"github.com/restman-dev/restman/internal/vars"
)

func newTestRequest() *reqdef.RequestContext {
	return reqdef.NewRequestContext(&reqdef.Definition{
		Name:   "login",
		Method: "post",
		URL:    "https://api.test/login",
		Headers: []reqdef.Header{
			{Name: "Content-Type", Value: "application/json"},
		},
		Body: reqdef.Body{Text: `{"user":"ada"}`},
	})
}

func newTestResponse() *reqdef.ResponseContext {
	return &reqdef.ResponseContext{
		Status:   "200 OK",
		Code:     200,
		Headers:  http.Header{"Content-Type": []string{"application/json"}},
		Body:     []byte(`{"token":"abc123","count":3}`),
		Duration: 120 * time.Millisecond,
		Size:     28,
	}
}

func TestPreRequestSetsVariables(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPreRequest(context.Background(), `
		pm.environment.set("region", "eu-west-1");
		pm.collectionVariables.set("attempt", 2);
		pm.globals.set("traceId", "t-99");
	`, store, newTestRequest())
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if v, _ := store.Get(vars.ScopeEnvironment, "region"); v != "eu-west-1" {
		t.Fatalf("environment.set did not stick: %q", v)
	}
	if v, _ := store.Get(vars.ScopeCollection, "attempt"); v != "2" {
		t.Fatalf("collectionVariables.set should coerce numbers, got %q", v)
	}
	if v, _ := store.Get(vars.ScopeExtracted, "traceId"); v != "t-99" {
		t.Fatalf("globals must write the extracted scope, got %q", v)
	}
}

func TestPreRequestMutatesRequest(t *testing.T) {
	store := vars.NewStore()
	req := newTestRequest()
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPreRequest(context.Background(), `
		pm.request.headers.upsert({key: "Authorization", value: "Bearer tok"});
		pm.request.headers.remove("Content-Type");
		pm.request.url = pm.request.url + "?fast=1";
		pm.request.method = "put";
	`, store, req)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if v, ok := req.GetHeader("authorization"); !ok || v != "Bearer tok" {
		t.Fatalf("upsert header missing, got %q ok=%v", v, ok)
	}
	if req.HasHeader("Content-Type") {
		t.Fatal("removed header still present")
	}
	if req.URL != "https://api.test/login?fast=1" {
		t.Fatalf("url write lost: %q", req.URL)
	}
	if req.Method != "PUT" {
		t.Fatalf("method should be uppercased, got %q", req.Method)
	}
}

func TestPostResponseRequestIsReadOnly(t *testing.T) {
	store := vars.NewStore()
	req := newTestRequest()
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPostResponse(context.Background(),
		`pm.request.url = "https://evil.test";`, store, req, newTestResponse())
	if result.Err == nil {
		t.Fatal("expected an error writing pm.request after send")
	}
	if errdef.CodeOf(result.Err) != errdef.CodeScript {
		t.Fatalf("wrong code: %v", errdef.CodeOf(result.Err))
	}
	if req.URL != "https://api.test/login" {
		t.Fatalf("request mutated post-response: %q", req.URL)
	}
}

func TestResponseUnavailableBeforeSend(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPreRequest(context.Background(),
		`pm.response.code;`, store, newTestRequest())
	if result.Err == nil {
		t.Fatal("expected pm.response access to fail in the pre phase")
	}
	if !strings.Contains(result.Err.Error(), "not available") {
		t.Fatalf("unhelpful message: %v", result.Err)
	}
}

func TestPostResponseAssertions(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPostResponse(context.Background(), `
		pm.test("status is 200", function () {
			pm.response.to.have.status(200);
		});
		pm.test("token extracted", function () {
			var body = pm.response.json();
			pm.expect(body.token).to.equal("abc123");
			pm.globals.set("token", body.token);
		});
		pm.test("count too large", function () {
			pm.expect(pm.response.json().count).to.be.above(10);
		});
	`, store, newTestRequest(), newTestResponse())
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Assertions) != 3 {
		t.Fatalf("want 3 assertion records, got %d", len(result.Assertions))
	}
	if !result.Assertions[0].Passed || !result.Assertions[1].Passed {
		t.Fatalf("first two tests should pass: %+v", result.Assertions)
	}
	failed := result.FailedAssertions()
	if len(failed) != 1 || failed[0].Name != "count too large" {
		t.Fatalf("wrong failures: %+v", failed)
	}
	if failed[0].Message == "" {
		t.Fatal("failed assertion should carry a message")
	}
	if v, _ := store.Get(vars.ScopeExtracted, "token"); v != "abc123" {
		t.Fatalf("extraction inside pm.test lost: %q", v)
	}
}

func TestFailingTestDoesNotStopScript(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPostResponse(context.Background(), `
		pm.test("fails", function () { pm.expect(1).to.equal(2); });
		pm.environment.set("ran", "yes");
	`, store, newTestRequest(), newTestResponse())
	if result.Err != nil {
		t.Fatalf("a failed test must not error the script: %v", result.Err)
	}
	if v, _ := store.Get(vars.ScopeEnvironment, "ran"); v != "yes" {
		t.Fatal("script should continue past a failed test")
	}
}

func TestScriptTimeoutInterruptsLoop(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(50 * time.Millisecond)

	start := time.Now()
	result := sandbox.RunPreRequest(context.Background(),
		`while (true) {}`, store, newTestRequest())
	if result.Err == nil {
		t.Fatal("infinite loop must be interrupted")
	}
	if errdef.CodeOf(result.Err) != errdef.CodeScriptTimeout {
		t.Fatalf("wrong code: %v", errdef.CodeOf(result.Err))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("interrupt took too long: %v", elapsed)
	}
}

func TestScriptContextCancellation(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(10 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	result := sandbox.RunPreRequest(ctx, `while (true) {}`, store, newTestRequest())
	if errdef.CodeOf(result.Err) != errdef.CodeCancelled {
		t.Fatalf("want cancelled, got %v", result.Err)
	}
}

func TestScriptErrorDoesNotPanicHost(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPreRequest(context.Background(),
		`throw new Error("boom");`, store, newTestRequest())
	if result.Err == nil {
		t.Fatal("thrown error must surface in the result")
	}
	if errdef.CodeOf(result.Err) != errdef.CodeScript {
		t.Fatalf("wrong code: %v", errdef.CodeOf(result.Err))
	}
	if !strings.Contains(result.Err.Error(), "boom") {
		t.Fatalf("message lost: %v", result.Err)
	}
}

func TestExecutionsAreIsolated(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(time.Second)

	first := sandbox.RunPreRequest(context.Background(),
		`var leak = "value"; globalThis.stash = 1;`, store, newTestRequest())
	if first.Err != nil {
		t.Fatalf("setup script: %v", first.Err)
	}
	second := sandbox.RunPreRequest(context.Background(), `
		if (typeof leak !== "undefined" || typeof stash !== "undefined") {
			throw new Error("state leaked between executions");
		}
	`, store, newTestRequest())
	if second.Err != nil {
		t.Fatalf("interpreter state leaked: %v", second.Err)
	}
}

func TestConsoleCapture(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPreRequest(context.Background(), `
		console.log("plain", 42);
		console.warn({a: 1});
		console.error("bad");
	`, store, newTestRequest())
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Console) != 3 {
		t.Fatalf("want 3 console lines, got %d", len(result.Console))
	}
	if result.Console[0].Level != "log" || result.Console[0].Message != "plain 42" {
		t.Fatalf("bad first line: %+v", result.Console[0])
	}
	if result.Console[1].Level != "warn" || result.Console[1].Message != `{"a":1}` {
		t.Fatalf("objects should log as JSON: %+v", result.Console[1])
	}
	if result.Console[2].Level != "error" {
		t.Fatalf("bad level: %+v", result.Console[2])
	}
}

func TestVariablesMergedView(t *testing.T) {
	store := vars.NewStore()
	store.Set(vars.ScopeEnvironment, "host", "env.test")
	store.Set(vars.ScopeCollection, "host", "coll.test")
	store.Set(vars.ScopeExtracted, "token", "tok-1")
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPreRequest(context.Background(), `
		if (pm.variables.get("host") !== "coll.test") {
			throw new Error("collection must shadow environment");
		}
		if (pm.variables.get("token") !== "tok-1") {
			throw new Error("extracted missing from merged view");
		}
		if (pm.variables.get("nope") !== undefined) {
			throw new Error("missing keys must read undefined");
		}
		var replaced = pm.variables.replaceIn("https://{{host}}/x");
		if (replaced !== "https://coll.test/x") {
			throw new Error("replaceIn broken: " + replaced);
		}
	`, store, newTestRequest())
	if result.Err != nil {
		t.Fatalf("merged view: %v", result.Err)
	}
}

func TestEmptyScriptIsNoop(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPreRequest(context.Background(), "   \n\t", store, newTestRequest())
	if result.Err != nil || len(result.Console) != 0 || len(result.Assertions) != 0 {
		t.Fatalf("blank script must be a no-op: %+v", result)
	}
}

func TestExpectChainCoverage(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(time.Second)

	result := sandbox.RunPostResponse(context.Background(), `
		pm.test("chain", function () {
			pm.expect("hello world").to.include("world");
			pm.expect([1, 2, 3]).to.have.lengthOf(3);
			pm.expect({a: 1}).to.have.property("a", 1);
			pm.expect(5).to.be.within(1, 10);
			pm.expect(5).to.not.equal(6);
			pm.expect("abc").to.match(/^a.c$/);
			pm.expect([]).to.be.empty;
			pm.expect(null).to.be.null;
			pm.expect(true).to.be.true;
			pm.expect({a: [1]}).to.deep.equal({a: [1]});
			pm.expect("str").to.be.a("string");
			pm.response.to.have.header("Content-Type", "application/json");
			pm.response.to.not.have.status(404);
		});
	`, store, newTestRequest(), newTestResponse())
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Assertions) != 1 || !result.Assertions[0].Passed {
		t.Fatalf("chain assertions failed: %+v", result.Assertions)
	}
}

func TestTimeoutInsidePmTestAbortsScript(t *testing.T) {
	store := vars.NewStore()
	sandbox := NewSandbox(50 * time.Millisecond)

	result := sandbox.RunPostResponse(context.Background(), `
		pm.test("spin", function () { while (true) {} });
		pm.environment.set("after", "ran");
	`, store, newTestRequest(), newTestResponse())
	if errdef.CodeOf(result.Err) != errdef.CodeScriptTimeout {
		t.Fatalf("want timeout code, got %v", result.Err)
	}
	if _, ok := store.Get(vars.ScopeEnvironment, "after"); ok {
		t.Fatal("interrupt inside pm.test must abort the whole script")
	}
}
