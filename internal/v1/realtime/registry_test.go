package realtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRegistry_RunsTasks(t *testing.T) {
	reg := NewRegistry()

	var ran atomic.Bool
	reg.Go("probe", func(ctx context.Context) {
		ran.Store(true)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))
	assert.True(t, ran.Load())
}

func TestRegistry_ShutdownCancelsTasks(t *testing.T) {
	reg := NewRegistry()

	stopped := make(chan struct{})
	reg.Go("sleeper", func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))

	select {
	case <-stopped:
	default:
		t.Fatal("task was still running after Shutdown returned")
	}
}

func TestRegistry_ShutdownTimesOutOnStuckTask(t *testing.T) {
	reg := NewRegistry()

	release := make(chan struct{})
	reg.Go("stuck", func(ctx context.Context) {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := reg.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Unstick the task so it does not outlive the test.
	close(release)
	require.NoError(t, reg.Shutdown(context.Background()))
}
