package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/inquest/pkg/agentruntime"
	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/masking"
	"github.com/codeready-toolchain/inquest/pkg/persistence"
	"github.com/codeready-toolchain/inquest/pkg/session"
)

// Pool launches and tracks session workers. Each session gets at most one
// worker for its lifetime; the record's worker-started latch guarantees it
// even under concurrent stream and start requests.
type Pool struct {
	runtime agentruntime.Runtime
	cfg     config.EngineConfig
	masker  *masking.Service
	adapter persistence.Adapter
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(runtime agentruntime.Runtime, cfg config.EngineConfig,
	masker *masking.Service, adapter persistence.Adapter) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		runtime: runtime,
		cfg:     cfg,
		masker:  masker,
		adapter: adapter,
		logger:  slog.With("component", "worker_pool"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// EnsureStarted launches the session's worker if it has not been launched
// yet. Returns true when this call started it.
func (p *Pool) EnsureStarted(rec *session.Record) bool {
	if !rec.MarkWorkerStarted() {
		return false
	}

	p.logger.Info("Starting session worker", "session_id", rec.ID())
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		New(rec, p.runtime, p.cfg, p.masker, p.adapter).Run(p.ctx)
	}()
	return true
}

// Stop cancels all running workers and waits for them to finish or for ctx
// to expire, whichever comes first.
func (p *Pool) Stop(ctx context.Context) error {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
