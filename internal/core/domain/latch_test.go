package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keelbuild.dev/keel/internal/core/domain"
)

func TestLatch_SetThenWaitReturnsImmediately(t *testing.T) {
	l := domain.NewLatch[bool]()
	l.Set(true)

	v, err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, v)
	assert.True(t, l.IsSet())
}

func TestLatch_WaitBlocksUntilSet(t *testing.T) {
	l := domain.NewLatch[string]()

	done := make(chan struct{})
	var got string
	go func() {
		v, err := l.Wait(context.Background())
		assert.NoError(t, err)
		got = v
		close(done)
	}()

	assert.False(t, l.IsSet())
	l.Set("ready")

	select {
	case <-done:
		assert.Equal(t, "ready", got)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Set")
	}
}

func TestLatch_WaitReturnsErrorOnCancellation(t *testing.T) {
	l := domain.NewLatch[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Wait(ctx)
	assert.Error(t, err)
}

func TestLatch_SetTwicePanics(t *testing.T) {
	l := domain.NewLatch[bool]()
	l.Set(true)
	assert.Panics(t, func() { l.Set(false) })
}
