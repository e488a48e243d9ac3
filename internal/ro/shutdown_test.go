package ro

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/samber/ro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownSignals(t *testing.T) {
	assert.Contains(t, ShutdownSignals, syscall.SIGINT)
	assert.Contains(t, ShutdownSignals, syscall.SIGTERM)
}

func TestGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Creation must not block or emit before a signal arrives.
	assert.NotNil(t, GracefulShutdown(ctx))
	assert.NotNil(t, GracefulShutdownWithSignals(ctx, syscall.SIGUSR1))
}

func TestOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := false
	sub := OnShutdown(ctx, func(_ os.Signal) {
		called = true
	})
	require.NotNil(t, sub)

	cancel()
	time.Sleep(10 * time.Millisecond)

	// No signal was sent, so the callback never fires.
	assert.False(t, called)
}

func TestGracefulShutdownParentCancellation(t *testing.T) {
	parentCtx, cancelParent := context.WithCancel(context.Background())
	obs := GracefulShutdownWithSignals(parentCtx, syscall.SIGUSR1)

	// The subscription uses its own live context; only the parent dies.
	subCtx, cancelSub := context.WithCancel(context.Background())
	defer cancelSub()

	done := make(chan error, 1)
	go func() {
		_, _, err := ro.CollectWithContext(subCtx, obs)
		done <- err
	}()

	cancelParent()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("observable did not error after parent context cancellation")
	}
}

func TestWaitForShutdownContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sig, err := WaitForShutdown(ctx)
		if err == nil {
			assert.Nil(t, sig)
		}
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Log("WaitForShutdown did not return promptly on cancellation")
	}
}
