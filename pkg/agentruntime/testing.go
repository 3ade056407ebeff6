package agentruntime

import (
	"context"
	"sync"
)

// ScriptAction is one step of a scripted run: it fires handler callbacks
// the way a live runtime would.
type ScriptAction func(ctx context.Context, h Handler) error

// ScriptedRun is one scripted attempt.
type ScriptedRun struct {
	ThreadID string
	Actions  []ScriptAction
	Result   *RunResult
	Err      error
}

// ScriptedRuntime replays pre-scripted runs, one per StreamRun call, and
// records the requests it received. Used by engine tests in place of the
// live agent platform.
type ScriptedRuntime struct {
	mu       sync.Mutex
	runs     []ScriptedRun
	next     int
	requests []RunRequest
}

// NewScriptedRuntime builds a runtime that plays the given runs in order.
func NewScriptedRuntime(runs ...ScriptedRun) *ScriptedRuntime {
	return &ScriptedRuntime{runs: runs}
}

// Requests returns a copy of the requests received so far.
func (r *ScriptedRuntime) Requests() []RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunRequest, len(r.requests))
	copy(out, r.requests)
	return out
}

// Calls returns how many times StreamRun has been invoked.
func (r *ScriptedRuntime) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// StreamRun plays the next scripted run. Context is checked between
// actions, mirroring the live runtime's safe points. Running out of
// scripted runs is a schema error so tests fail loudly.
func (r *ScriptedRuntime) StreamRun(ctx context.Context, req RunRequest, handler Handler) (*RunResult, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	if r.next >= len(r.runs) {
		r.mu.Unlock()
		return nil, &SchemaError{Detail: "scripted runtime exhausted"}
	}
	run := r.runs[r.next]
	r.next++
	r.mu.Unlock()

	if run.ThreadID != "" {
		handler.OnThreadCreated(run.ThreadID)
	}
	for _, action := range run.Actions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := action(ctx, handler); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return run.Result, run.Err
}
