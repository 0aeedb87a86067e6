// SPDX-FileCopyrightText: 2025 The eteam Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService implements the full lifecycle and records what was called.
type fakeService struct {
	name string

	initErr error
	runErr  error

	initCalled     atomic.Bool
	runCalled      atomic.Bool
	shutdownCalled atomic.Bool
}

var (
	_ Initializer = (*fakeService)(nil)
	_ Runner      = (*fakeService)(nil)
	_ Shutdowner  = (*fakeService)(nil)
)

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Init() error {
	f.initCalled.Store(true)
	return f.initErr
}

func (f *fakeService) Run(ctx context.Context) error {
	f.runCalled.Store(true)
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeService) Shutdown() error {
	f.shutdownCalled.Store(true)
	return nil
}

// nameOnlyService implements nothing beyond Service.
type nameOnlyService struct{ name string }

func (n *nameOnlyService) Name() string { return n.name }

func TestInit(t *testing.T) {
	t.Run("initializes all services", func(t *testing.T) {
		a := &fakeService{name: "a"}
		b := &fakeService{name: "b"}

		err := Init(nil, []Service{a, b, &nameOnlyService{name: "c"}})
		require.NoError(t, err)
		assert.True(t, a.initCalled.Load())
		assert.True(t, b.initCalled.Load())
	})

	t.Run("failure shuts down initialized services", func(t *testing.T) {
		a := &fakeService{name: "a"}
		b := &fakeService{name: "b", initErr: errors.New("boom")}
		c := &fakeService{name: "c"}

		err := Init(nil, []Service{a, b, c})
		require.Error(t, err)
		assert.ErrorContains(t, err, "failed to initialize service b")

		assert.True(t, a.shutdownCalled.Load(), "already initialized service must be shut down")
		assert.False(t, b.shutdownCalled.Load(), "failed service must not be shut down")
		assert.False(t, c.initCalled.Load(), "later services must not be initialized")
	})
}

func TestRun(t *testing.T) {
	t.Run("first failure terminates the group", func(t *testing.T) {
		failing := &fakeService{name: "failing", runErr: errors.New("exploded")}
		blocking := &fakeService{name: "blocking"}

		err := Run(context.Background(), nil, []Service{blocking, failing})
		require.Error(t, err)
		assert.ErrorContains(t, err, "exploded")

		assert.True(t, blocking.runCalled.Load())
		assert.True(t, blocking.shutdownCalled.Load())
		assert.True(t, failing.shutdownCalled.Load())
	})

	t.Run("context cancellation terminates the group", func(t *testing.T) {
		blocking := &fakeService{name: "blocking"}
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- Run(ctx, nil, []Service{blocking}) }()
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after context cancellation")
		}
	})
}

func TestSignalHandler(t *testing.T) {
	t.Run("terminates on signal", func(t *testing.T) {
		sh := NewSignalHandler(nil, syscall.SIGUSR1)
		assert.Equal(t, "signal-handler", sh.Name())

		done := make(chan error, 1)
		go func() { done <- sh.Run(context.Background()) }()

		// give Run a moment to install the handler
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("signal handler did not return after signal")
		}
	})

	t.Run("terminates on context cancellation", func(t *testing.T) {
		sh := NewSignalHandler(nil, syscall.SIGUSR1)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- sh.Run(ctx) }()
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("signal handler did not return after cancellation")
		}
	})
}
