package lifecycle

import (
	"context"
	"sync"
	"time"
)

// LoopRunner owns one background goroutine. Start and Stop are idempotent
// and Stop returns only after the loop has exited.
type LoopRunner struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started time.Time
}

func NewLoopRunner() *LoopRunner {
	return &LoopRunner{}
}

// Start runs loop in a goroutine with a context that Stop cancels. It
// returns false if loop is nil or a loop is already running.
func (r *LoopRunner) Start(loop func(ctx context.Context)) bool {
	if loop == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.started = time.Now()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		loop(ctx)
	}()
	return true
}

func (r *LoopRunner) Stop() bool {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return false
	}

	cancel()
	r.wg.Wait()
	return true
}

func (r *LoopRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Uptime is how long the current loop has been running, zero when stopped.
func (r *LoopRunner) Uptime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return 0
	}
	return time.Since(r.started)
}

// Ticker builds a loop that calls tick every interval until stopped. With
// immediate set, tick also runs once before the first wait.
func Ticker(interval time.Duration, immediate bool, tick func()) func(ctx context.Context) {
	return func(ctx context.Context) {
		if immediate {
			tick()
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tick()
			}
		}
	}
}
