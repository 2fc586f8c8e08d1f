package channels

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunGroupEndWaitsForLoop(t *testing.T) {
	var g runGroup
	ctx := g.begin(context.Background())
	var exited atomic.Bool
	g.spawn("test", "Loop", nil, func() error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		exited.Store(true)
		return ctx.Err()
	}, func(error) { t.Error("cancellation must not count as failure") })

	assert.True(t, g.end(time.Second))
	assert.True(t, exited.Load())
	assert.True(t, g.end(0), "ending twice is a no-op")
}

func TestRunGroupReportsFailure(t *testing.T) {
	var g runGroup
	g.begin(context.Background())
	failed := make(chan error, 1)
	g.spawn("test", "Loop", map[string]interface{}{"k": "v"}, func() error {
		return errors.New("boom")
	}, func(err error) { failed <- err })

	select {
	case err := <-failed:
		assert.EqualError(t, err, "boom")
	case <-time.After(time.Second):
		t.Fatal("onFailure not called")
	}
	assert.True(t, g.end(time.Second))
}

func TestRunGroupEndTimesOut(t *testing.T) {
	var g runGroup
	g.begin(context.Background())
	release := make(chan struct{})
	defer close(release)
	g.spawn("test", "Loop", nil, func() error {
		<-release
		return nil
	}, nil)

	assert.False(t, g.end(10*time.Millisecond))
}
