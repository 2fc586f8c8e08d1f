package channels

import (
	"context"
	"errors"
	"sync"
	"time"

	"botsim/pkg/logger"
)

// preview shortens s to at most maxRunes runes for log fields, marking a
// cut with "...".
func preview(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// runGroup owns the cancel func and exit signal of one background loop.
type runGroup struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// begin derives the loop context from parent. A previous loop is not
// stopped; callers end it first.
func (g *runGroup) begin(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	g.mu.Lock()
	g.cancel = cancel
	g.done = nil
	g.mu.Unlock()
	return ctx
}

// spawn runs task in its own goroutine. Cancellation is a normal exit;
// any other error is logged and handed to onFailure.
func (g *runGroup) spawn(component, taskName string, fields map[string]interface{}, task func() error, onFailure func(error)) {
	done := make(chan struct{})
	g.mu.Lock()
	g.done = done
	g.mu.Unlock()

	go func() {
		defer close(done)
		err := task()
		if err == nil || errors.Is(err, context.Canceled) {
			logger.DebugCF(component, taskName+" stopped", fields)
			return
		}
		failed := make(map[string]interface{}, len(fields)+1)
		for k, v := range fields {
			failed[k] = v
		}
		failed[logger.FieldError] = err.Error()
		logger.ErrorCF(component, taskName+" failed", failed)
		if onFailure != nil {
			onFailure(err)
		}
	}()
}

// end cancels the loop and waits up to timeout for it to return. It
// reports whether the loop is known to have exited.
func (g *runGroup) end(timeout time.Duration) bool {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
