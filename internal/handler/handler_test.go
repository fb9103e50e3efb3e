package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFireMessageInvokesBlockingHandler(t *testing.T) {
	r := New()
	called := false
	r.OnMessage(BlockingOrAsync[MessageEvent]{
		Blocking: func(ctx context.Context, e MessageEvent) error {
			called = true
			return nil
		},
	})
	r.FireMessage(context.Background(), MessageEvent{})
	r.Wait()
	assert.True(t, called)
}

func TestFireMessageSwallowsBlockingError(t *testing.T) {
	r := New()
	r.OnMessage(BlockingOrAsync[MessageEvent]{
		Blocking: func(ctx context.Context, e MessageEvent) error {
			return errors.New("boom")
		},
	})
	assert.NotPanics(t, func() {
		r.FireMessage(context.Background(), MessageEvent{})
	})
}

func TestFireMessageNoOpWhenUnset(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() {
		r.FireMessage(context.Background(), MessageEvent{})
	})
}

func TestFireMessageInvokesAsyncHandler(t *testing.T) {
	r := New()
	called := make(chan struct{})
	r.OnMessage(BlockingOrAsync[MessageEvent]{
		Async: func(ctx context.Context, e MessageEvent) <-chan error {
			ch := make(chan error, 1)
			close(called)
			ch <- nil
			return ch
		},
	})
	r.FireMessage(context.Background(), MessageEvent{})

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("async handler was not invoked")
	}
}
