// Package session holds the live investigation state: the per-session
// record with its append-only history, the subscriber fan-out, and the
// in-memory store indexing records by id.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/models"
)

// Record is one investigation session. All mutable state is guarded by the
// record's own lock; the lock is held only for local mutation, never while
// enqueuing to subscriber queues, calling the agent runtime, or writing to
// an HTTP response.
//
// History is append-only and only the session's worker appends. Status is
// likewise worker-owned and advances monotonically:
// pending → running → (awaiting_input ↔ running)* → terminal.
type Record struct {
	id                  string
	alertText           string
	scenario            string
	orchestratorAgentID string
	subAgentIDs         []string
	queueCap            int
	createdAt           time.Time

	mu            sync.Mutex
	threadID      string
	status        models.Status
	updatedAt     time.Time
	finalMessage  string
	history       []models.Event
	subs          map[*Subscriber]struct{}
	workerStarted bool

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

func newRecord(id, alertText, scenario string, sc config.ScenarioConfig, queueCap int) *Record {
	now := time.Now()
	return &Record{
		id:                  id,
		alertText:           alertText,
		scenario:            scenario,
		orchestratorAgentID: sc.OrchestratorAgentID,
		subAgentIDs:         sc.SubAgentIDs,
		queueCap:            queueCap,
		createdAt:           now,
		status:              models.StatusPending,
		updatedAt:           now,
		subs:                make(map[*Subscriber]struct{}),
		cancelCh:            make(chan struct{}),
	}
}

// ID returns the session id.
func (r *Record) ID() string { return r.id }

// AlertText returns the original alert input.
func (r *Record) AlertText() string { return r.alertText }

// Scenario returns the scenario name this session is bound to.
func (r *Record) Scenario() string { return r.scenario }

// OrchestratorAgentID returns the resolved root agent id.
func (r *Record) OrchestratorAgentID() string { return r.orchestratorAgentID }

// SubAgentIDs returns the resolved connected-agent ids.
func (r *Record) SubAgentIDs() []string { return r.subAgentIDs }

// CreatedAt returns the creation timestamp.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// Status returns the current lifecycle status.
func (r *Record) Status() models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SetStatus advances the lifecycle status. Only the worker calls this;
// terminal transitions go through Finish instead so subscriber queues are
// closed under the same critical section discipline.
func (r *Record) SetStatus(status models.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		slog.Warn("Ignoring status change on terminal session",
			"session_id", r.id, "from", r.status, "to", status)
		return
	}
	r.status = status
	r.updatedAt = time.Now()
}

// ThreadID returns the agent-runtime conversation handle, empty until the
// runtime first reports one.
func (r *Record) ThreadID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threadID
}

// SetThreadID stores the conversation handle on first report. Returns true
// the first time, false if a thread id was already recorded.
func (r *Record) SetThreadID(threadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.threadID != "" {
		return false
	}
	r.threadID = threadID
	r.updatedAt = time.Now()
	return true
}

// FinalMessage returns the diagnosis text, empty until completion.
func (r *Record) FinalMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalMessage
}

// LastSeq returns the sequence number of the newest history event.
func (r *Record) LastSeq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return 0
	}
	return r.history[len(r.history)-1].Seq
}

// History returns a copy of the event history.
func (r *Record) History() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Event, len(r.history))
	copy(out, r.history)
	return out
}

// MarkWorkerStarted flips the worker-started latch. Returns true exactly
// once; callers launch the worker only on a true return.
func (r *Record) MarkWorkerStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workerStarted {
		return false
	}
	r.workerStarted = true
	return true
}

// Cancel fires the cancel latch. The worker observes it at its next safe
// point (return from an agent-runtime callback). Idempotent.
func (r *Record) Cancel() {
	r.cancelOnce.Do(func() { close(r.cancelCh) })
}

// CancelSignal returns the latch channel, closed once cancellation has
// been requested.
func (r *Record) CancelSignal() <-chan struct{} { return r.cancelCh }

// CancelRequested reports whether the latch has fired.
func (r *Record) CancelRequested() bool {
	select {
	case <-r.cancelCh:
		return true
	default:
		return false
	}
}

// Summary returns the listing view of the session.
func (r *Record) Summary() models.SessionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lastSeq int64
	if n := len(r.history); n > 0 {
		lastSeq = r.history[n-1].Seq
	}
	return models.SessionSummary{
		ID:        r.id,
		Scenario:  r.scenario,
		Status:    r.status,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
		LastSeq:   lastSeq,
	}
}

// Snapshot produces the durable view flushed to the persistence adapter.
// Subscriber state and the worker handle are deliberately absent.
func (r *Record) Snapshot() *models.PersistedSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := make([]models.Event, len(r.history))
	copy(history, r.history)

	var final *string
	if r.finalMessage != "" {
		msg := r.finalMessage
		final = &msg
	}

	return &models.PersistedSession{
		ID:           r.id,
		AlertText:    r.alertText,
		Scenario:     r.scenario,
		Status:       r.status,
		CreatedAt:    r.createdAt,
		UpdatedAt:    r.updatedAt,
		History:      history,
		FinalMessage: final,
	}
}
