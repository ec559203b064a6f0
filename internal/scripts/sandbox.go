package scripts

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/restman-dev/restman/internal/errdef"
	"github.com/restman-dev/restman/internal/reqdef"
	"github.com/restman-dev/restman/internal/vars"
)

const DefaultTimeout = 5 * time.Second

// Sandbox executes one script body inside a fresh goja interpreter. Runtimes
// are never reused across executions, so script-local state cannot leak from
// one request to the next; only writes through the pm variable APIs survive.
type Sandbox struct {
	timeout time.Duration
}

func NewSandbox(timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sandbox{timeout: timeout}
}

// RunPreRequest executes a pre-request script. The script may mutate the
// request context and write variables; both effects apply immediately.
func (s *Sandbox) RunPreRequest(
	ctx context.Context,
	script string,
	store *vars.Store,
	req *reqdef.RequestContext,
) ExecutionResult {
	return s.execute(ctx, script, &binder{
		phase: PhasePreRequest,
		store: store,
		req:   req,
	})
}

// RunPostResponse executes a test script against an observed response. The
// request context is readable but frozen; pm.response is live.
func (s *Sandbox) RunPostResponse(
	ctx context.Context,
	script string,
	store *vars.Store,
	req *reqdef.RequestContext,
	resp *reqdef.ResponseContext,
) ExecutionResult {
	return s.execute(ctx, script, &binder{
		phase: PhasePostResponse,
		store: store,
		req:   req,
		resp:  resp,
	})
}

func (s *Sandbox) execute(ctx context.Context, script string, b *binder) ExecutionResult {
	var result ExecutionResult
	b.result = &result

	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	if strings.TrimSpace(script) == "" {
		return result
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		result.Err = errdef.Wrap(errdef.CodeCancelled, err, "script cancelled")
		return result
	}

	vm := goja.New()
	b.vm = vm
	if err := b.bind(); err != nil {
		result.Err = errdef.Wrap(errdef.CodeScript, err, "bind script api")
		return result
	}

	// The interrupt fires on a wall clock, not on ops executed; an infinite
	// loop in script code cannot outlive the timer. The runtime itself is
	// function-local, so teardown happens on every exit path.
	var timedOut atomic.Bool
	timer := time.AfterFunc(s.timeout, func() {
		timedOut.Store(true)
		vm.Interrupt("script timeout")
	})
	defer timer.Stop()

	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-done:
				vm.Interrupt(ctx.Err())
			case <-stop:
			}
		}()
	}

	if err := runScript(vm, script); err != nil {
		switch {
		case timedOut.Load():
			result.Err = errdef.New(errdef.CodeScriptTimeout, "script exceeded %s", s.timeout)
		case ctx.Err() != nil:
			result.Err = errdef.Wrap(errdef.CodeCancelled, ctx.Err(), "script cancelled")
		default:
			result.Err = errdef.New(errdef.CodeScript, "%s", exceptionMessage(err))
		}
	}
	return result
}

// runScript shields the host from anything the interpreter can throw at it.
// Interrupts raised inside native callbacks surface as panics rather than
// returned errors, and a script must never take the process down.
func runScript(vm *goja.Runtime, script string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = rerr
				return
			}
			err = fmt.Errorf("script panic: %v", r)
		}
	}()
	_, err = vm.RunString(script)
	return err
}
