package worker

import (
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/inquest/pkg/agentruntime"
	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/masking"
	"github.com/codeready-toolchain/inquest/pkg/models"
	"github.com/codeready-toolchain/inquest/pkg/reasoning"
	"github.com/codeready-toolchain/inquest/pkg/session"
)

// translator turns agent-runtime callbacks into session events. One
// translator lives for exactly one attempt, so step numbering restarts at 1
// after every retry; clients are told to discard steps on run_start.
//
// Callbacks arrive from a single runtime goroutine, but the worker reads
// the accumulated state after StreamRun returns, hence the lock.
type translator struct {
	rec    *session.Record
	cfg    config.EngineConfig
	masker *masking.Service

	mu        sync.Mutex
	stepCount int
	open      map[string]openStep
	deltas    strings.Builder
	finalText string
}

type openStep struct {
	number    int
	startedAt time.Time
}

func newTranslator(rec *session.Record, cfg config.EngineConfig, masker *masking.Service) *translator {
	return &translator{
		rec:    rec,
		cfg:    cfg,
		masker: masker,
		open:   make(map[string]openStep),
	}
}

func (t *translator) OnThreadCreated(threadID string) {
	// The thread id is announced once per session, not once per attempt:
	// retries resume the same conversation.
	if t.rec.SetThreadID(threadID) {
		t.rec.Append(models.ThreadCreatedPayload{ThreadID: threadID})
	}
}

func (t *translator) OnRunStepStart(step agentruntime.StepStart) {
	t.mu.Lock()
	t.stepCount++
	number := t.stepCount
	t.open[step.StepID] = openStep{number: number, startedAt: time.Now()}
	t.mu.Unlock()

	t.rec.Append(models.StepStartPayload{Step: number, Agent: step.Agent})
}

func (t *translator) OnRunStepComplete(step agentruntime.StepComplete) {
	t.mu.Lock()
	started, ok := t.open[step.StepID]
	if ok {
		delete(t.open, step.StepID)
	} else {
		// Completion without a matching start; assign the next number so
		// the step still shows up rather than vanishing.
		t.stepCount++
		started = openStep{number: t.stepCount, startedAt: time.Now()}
	}
	t.mu.Unlock()

	query, rationale := reasoning.Extract(step.Arguments)
	t.rec.Append(models.StepCompletePayload{
		Step:       started.number,
		Agent:      step.Agent,
		DurationMS: time.Since(started.startedAt).Milliseconds(),
		Query:      t.masker.Redact(reasoning.Truncate(query, t.cfg.QueryTruncateChars)),
		Reasoning:  t.masker.Redact(rationale),
		Response:   t.masker.Redact(reasoning.Truncate(step.Output, t.cfg.ResponseTruncateChars)),
		Error:      step.Failed,
	})
}

func (t *translator) OnMessageDelta(text string) {
	t.mu.Lock()
	t.deltas.WriteString(text)
	t.mu.Unlock()

	t.rec.Append(models.MessageDeltaPayload{Text: text})
}

func (t *translator) OnMessageCreate(msg agentruntime.Message) {
	if msg.Final {
		t.mu.Lock()
		t.finalText = msg.Text
		t.mu.Unlock()
		return
	}

	// Intermediate messages are progress narration between delegations.
	if text := reasoning.Strip(msg.Text); text != "" {
		t.rec.Append(models.ThinkingPayload{Text: t.masker.Redact(text)})
	}
}

func (t *translator) OnRunStateChange(state agentruntime.RunState) {
	switch state {
	case agentruntime.RunStateAwaitingInput:
		t.rec.SetStatus(models.StatusAwaitingInput)
	case agentruntime.RunStateRunning:
		t.rec.SetStatus(models.StatusRunning)
	case agentruntime.RunStateEnded:
		// Terminal status is decided by the worker, not the runtime.
	}
}

// steps returns the number of steps started during this attempt.
func (t *translator) steps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stepCount
}

// finalMessage returns the attempt's diagnosis: the final message when the
// runtime produced one, otherwise the concatenated deltas.
func (t *translator) finalMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalText != "" {
		return t.finalText
	}
	return t.deltas.String()
}
