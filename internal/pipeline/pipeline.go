package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/restman-dev/restman/internal/errdef"
	"github.com/restman-dev/restman/internal/httpclient"
	"github.com/restman-dev/restman/internal/reqdef"
	"github.com/restman-dev/restman/internal/scripts"
	"github.com/restman-dev/restman/internal/vars"
)

// State tracks where a request execution currently sits. Transitions only
// move forward; Errored is terminal and absorbs any stage that cannot
// proceed.
type State int

const (
	StateLoaded State = iota
	StatePreScriptRunning
	StateResolving
	StateTransporting
	StatePostScriptRunning
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StatePreScriptRunning:
		return "pre-script"
	case StateResolving:
		return "resolving"
	case StateTransporting:
		return "transporting"
	case StatePostScriptRunning:
		return "post-script"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Transport sends one resolved request. httpclient.Client satisfies this;
// tests substitute their own.
type Transport interface {
	Send(ctx context.Context, req *reqdef.RequestContext, opts httpclient.Options) (*reqdef.ResponseContext, error)
}

type Result struct {
	State      State
	Err        error
	ScriptErr  error
	Request    *reqdef.RequestContext
	Response   *reqdef.ResponseContext
	Unresolved []string
	Assertions []scripts.AssertionRecord
	Console    []scripts.ConsoleLine
	Duration   time.Duration
}

func (r *Result) Failed() bool {
	return r.State == StateErrored || r.Err != nil
}

type Pipeline struct {
	store     *vars.Store
	sandbox   *scripts.Sandbox
	transport Transport
	opts      httpclient.Options

	// OnTransition observes every state change; nil means no observer.
	OnTransition func(State)
}

func New(store *vars.Store, sandbox *scripts.Sandbox, transport Transport, opts httpclient.Options) *Pipeline {
	if store == nil {
		store = vars.NewStore()
	}
	if sandbox == nil {
		sandbox = scripts.NewSandbox(scripts.DefaultTimeout)
	}
	if transport == nil {
		transport = httpclient.NewClient()
	}
	return &Pipeline{store: store, sandbox: sandbox, transport: transport, opts: opts}
}

// Run drives one definition through the full lifecycle synchronously.
// Pre-script failures and unresolved tokens stop before any bytes leave
// the process; a transport failure does not, the post-script still runs
// against the synthetic response so failure-path tests can assert on it.
func (p *Pipeline) Run(ctx context.Context, def *reqdef.Definition) *Result {
	start := time.Now()
	result := &Result{State: StateLoaded}
	defer func() {
		result.Duration = time.Since(start)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	if def == nil {
		return p.fail(result, errdef.New(errdef.CodeParse, "no request definition"))
	}

	req := reqdef.NewRequestContext(def)
	result.Request = req

	if script := strings.TrimSpace(def.PreScript); script != "" {
		p.transition(result, StatePreScriptRunning)
		pre := p.sandbox.RunPreRequest(ctx, script, p.store, req)
		result.Console = append(result.Console, pre.Console...)
		result.Assertions = append(result.Assertions, pre.Assertions...)
		if pre.Err != nil {
			result.ScriptErr = pre.Err
			return p.fail(result, errdef.Wrap(errdef.CodeScript, pre.Err, "pre-request script"))
		}
	}

	if err := ctx.Err(); err != nil {
		return p.fail(result, errdef.Wrap(errdef.CodeCancelled, err, "run cancelled"))
	}
	p.transition(result, StateResolving)
	builder := NewBuilder(p.store)
	builder.Resolve(req)
	result.Unresolved = req.Unresolved
	if len(req.Unresolved) > 0 {
		return p.fail(result, errdef.New(
			errdef.CodeUnresolved,
			"unresolved variables: %s", strings.Join(req.Unresolved, ", "),
		))
	}
	if err := builder.ApplyAuth(req); err != nil {
		return p.fail(result, err)
	}

	if err := ctx.Err(); err != nil {
		return p.fail(result, errdef.Wrap(errdef.CodeCancelled, err, "run cancelled"))
	}
	p.transition(result, StateTransporting)
	resp, transportErr := p.transport.Send(ctx, req, p.opts)
	result.Response = resp
	if transportErr != nil {
		result.Err = transportErr
		if resp == nil {
			result.Response = &reqdef.ResponseContext{
				Failed:         true,
				TransportError: transportErr.Error(),
			}
		}
	}

	if script := strings.TrimSpace(def.PostScript); script != "" {
		p.transition(result, StatePostScriptRunning)
		post := p.sandbox.RunPostResponse(ctx, script, p.store, req, result.Response)
		result.Console = append(result.Console, post.Console...)
		result.Assertions = append(result.Assertions, post.Assertions...)
		if post.Err != nil {
			result.ScriptErr = post.Err
		}
	}

	p.transition(result, StateCompleted)
	return result
}

// Handle tracks an asynchronous run started with Start.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc
	result *Result
}

// Start runs the pipeline on its own goroutine. The handle's Done channel
// closes once the result is ready; Cancel aborts the in-flight stages
// through context cancellation.
func (p *Pipeline) Start(ctx context.Context, def *reqdef.Definition) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(handle.done)
		defer cancel()
		handle.result = p.Run(runCtx, def)
	}()
	return handle
}

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Cancel() { h.cancel() }

// Result blocks until the run finishes.
func (h *Handle) Result() *Result {
	<-h.done
	return h.result
}

func (p *Pipeline) transition(result *Result, next State) {
	result.State = next
	if p.OnTransition != nil {
		p.OnTransition(next)
	}
}

func (p *Pipeline) fail(result *Result, err error) *Result {
	result.Err = err
	p.transition(result, StateErrored)
	return result
}
