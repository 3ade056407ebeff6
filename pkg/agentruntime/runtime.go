// Package agentruntime defines the boundary to the hosted agent platform
// that actually runs the orchestrator and its connected sub-agents. The
// engine drives a run through the Runtime interface and observes it through
// Handler callbacks; agent provisioning happens out of band.
package agentruntime

import "context"

// RunRequest describes one orchestrator invocation.
type RunRequest struct {
	// ThreadID resumes an existing conversation when non-empty. Empty on
	// the first attempt; set on retries so the orchestrator keeps its
	// accumulated context.
	ThreadID string

	// Alert is the raw alert text handed to the orchestrator.
	Alert string

	// OrchestratorAgentID is the root agent for this scenario.
	OrchestratorAgentID string

	// SubAgentIDs are the connected specialist agents the orchestrator may
	// delegate to.
	SubAgentIDs []string
}

// RunResult is the outcome of a successful run.
type RunResult struct {
	ThreadID  string
	FinalText string
	Steps     int
	Tokens    *int
}

// StepStart reports a delegation the orchestrator just issued.
type StepStart struct {
	// StepID is the runtime's opaque identifier for the tool call; the
	// engine correlates StepComplete through it and assigns its own
	// client-facing step numbers.
	StepID    string
	Agent     string
	Arguments string
}

// StepComplete reports a finished delegation.
type StepComplete struct {
	StepID    string
	Agent     string
	Arguments string
	Output    string
	Failed    bool
}

// Message is a complete assistant message. Intermediate messages carry
// progress narration; the last one is the diagnosis.
type Message struct {
	Text  string
	Final bool
}

// RunState is the runtime's view of the conversation lifecycle.
type RunState string

const (
	RunStateRunning       RunState = "running"
	RunStateAwaitingInput RunState = "awaiting_input"
	RunStateEnded         RunState = "ended"
)

// Handler receives streaming callbacks during a run. Callbacks are invoked
// sequentially from a single goroutine; returns are the engine's safe points
// for observing cancellation.
type Handler interface {
	OnThreadCreated(threadID string)
	OnRunStepStart(step StepStart)
	OnRunStepComplete(step StepComplete)
	OnMessageDelta(text string)
	OnMessageCreate(msg Message)
	OnRunStateChange(state RunState)
}

// Runtime drives orchestrator runs on the agent platform.
type Runtime interface {
	// StreamRun executes one attempt, invoking the handler as the run
	// progresses. Blocks until the run ends or ctx is cancelled. Errors are
	// classified by Recoverable.
	StreamRun(ctx context.Context, req RunRequest, handler Handler) (*RunResult, error)
}
