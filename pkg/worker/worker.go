// Package worker runs one goroutine per live session: it drives the agent
// runtime through the configured retry budget, translates runtime callbacks
// into session events, and flushes the finished session to the persistence
// adapter.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codeready-toolchain/inquest/pkg/agentruntime"
	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/masking"
	"github.com/codeready-toolchain/inquest/pkg/models"
	"github.com/codeready-toolchain/inquest/pkg/persistence"
	"github.com/codeready-toolchain/inquest/pkg/reasoning"
	"github.com/codeready-toolchain/inquest/pkg/session"
)

const flushTimeout = 10 * time.Second

// Worker owns one session run from pending to terminal.
type Worker struct {
	rec     *session.Record
	runtime agentruntime.Runtime
	cfg     config.EngineConfig
	masker  *masking.Service
	adapter persistence.Adapter
	logger  *slog.Logger
}

// New creates a worker for the given session record.
func New(rec *session.Record, runtime agentruntime.Runtime, cfg config.EngineConfig,
	masker *masking.Service, adapter persistence.Adapter) *Worker {
	return &Worker{
		rec:     rec,
		runtime: runtime,
		cfg:     cfg,
		masker:  masker,
		adapter: adapter,
		logger:  slog.With("component", "worker", "session_id", rec.ID()),
	}
}

// Run executes the session to a terminal status. Blocks until done; callers
// launch it on its own goroutine (see Pool).
func (w *Worker) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
	defer cancel()

	// Tie the session's cancel latch to the run context so the runtime
	// unblocks promptly instead of waiting for its next safe point.
	go func() {
		select {
		case <-w.rec.CancelSignal():
			cancel()
		case <-ctx.Done():
		}
	}()

	// Cancelled before the first attempt (e.g. a pending session).
	if w.rec.CancelRequested() {
		w.finishCancelled()
		return
	}

	w.rec.SetStatus(models.StatusRunning)
	started := time.Now()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	for attempt := 0; ; attempt++ {
		w.rec.Append(models.RunStartPayload{
			Alert:    reasoning.Truncate(w.rec.AlertText(), w.cfg.QueryTruncateChars),
			ThreadID: w.rec.ThreadID(),
		})

		tr := newTranslator(w.rec, w.cfg, w.masker)
		result, err := w.runtime.StreamRun(ctx, agentruntime.RunRequest{
			ThreadID:            w.rec.ThreadID(),
			Alert:               w.rec.AlertText(),
			OrchestratorAgentID: w.rec.OrchestratorAgentID(),
			SubAgentIDs:         w.rec.SubAgentIDs(),
		}, tr)

		if err == nil {
			w.finishCompleted(tr, result, started)
			return
		}

		if w.rec.CancelRequested() || errors.Is(err, context.Canceled) {
			w.finishCancelled()
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			w.finishFailed("run timeout")
			return
		}
		if !agentruntime.Recoverable(err) || attempt >= w.cfg.MaxRetries {
			w.logger.Error("Session run failed", "attempt", attempt+1, "error", err)
			w.finishFailed(w.masker.RedactError(err))
			return
		}

		// Recoverable with budget left: announce the retry and back off.
		w.logger.Warn("Retrying session run", "attempt", attempt+1, "error", err)
		w.rec.Append(models.RetryPayload{
			Attempt: attempt + 1,
			Reason:  w.masker.RedactError(err),
		})
		if !w.sleep(ctx, bo.NextBackOff()) {
			if w.rec.CancelRequested() {
				w.finishCancelled()
			} else {
				w.finishFailed("run timeout")
			}
			return
		}
	}
}

// finishCompleted emits the diagnosis and success marker, then retires the
// session state to the adapter.
func (w *Worker) finishCompleted(tr *translator, result *agentruntime.RunResult, started time.Time) {
	finalText := tr.finalMessage()
	steps := tr.steps()
	var tokens *int
	if result != nil {
		if result.FinalText != "" {
			finalText = result.FinalText
		}
		if result.Steps > 0 {
			steps = result.Steps
		}
		tokens = result.Tokens
	}

	message := w.masker.Redact(reasoning.Strip(finalText))
	w.rec.Append(models.MessagePayload{Text: message})
	w.rec.Append(models.RunCompletePayload{
		Steps:      steps,
		Tokens:     tokens,
		DurationMS: time.Since(started).Milliseconds(),
	})
	w.rec.Finish(models.StatusCompleted, message)
	w.logger.Info("Session completed", "steps", steps, "duration_ms", time.Since(started).Milliseconds())
	w.flush()
}

func (w *Worker) finishCancelled() {
	w.rec.Append(models.ErrorPayload{Message: "cancelled", Recoverable: false})
	w.rec.Finish(models.StatusCancelled, "")
	w.logger.Info("Session cancelled")
	w.flush()
}

func (w *Worker) finishFailed(message string) {
	w.rec.Append(models.ErrorPayload{Message: message, Recoverable: false})
	w.rec.Finish(models.StatusFailed, "")
	w.flush()
}

// flush writes the terminal snapshot. The live record stays in the store
// index until the cleanup service retires it; this write just makes the
// outcome durable immediately.
func (w *Worker) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := w.adapter.Save(ctx, w.rec.Snapshot()); err != nil {
		w.logger.Error("Failed to persist terminal session", "error", err)
	}
}

// sleep waits for the backoff delay. Returns false if the run context
// expired first.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
