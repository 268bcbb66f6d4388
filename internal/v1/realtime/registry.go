package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/logging"
)

// Registry keeps a strong reference to every background task in the
// process: one relay per websocket connection and one game loop per room.
// Holding them in one place gives shutdown a single handle to cancel and
// await them all.
type Registry struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry returns an empty registry ready to track tasks.
func NewRegistry() *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{ctx: ctx, cancel: cancel}
}

// Context returns the context shared by all tracked tasks. It is
// cancelled when the registry shuts down.
func (r *Registry) Context() context.Context {
	return r.ctx
}

// Go runs fn on a tracked goroutine. The context passed to fn is
// cancelled when the registry shuts down; fn is expected to return
// promptly once that happens.
func (r *Registry) Go(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		logging.Debug(r.ctx, "background task started", zap.String("task", name))
		fn(r.ctx)
		logging.Debug(r.ctx, "background task finished", zap.String("task", name))
	}()
}

// Shutdown cancels every tracked task and blocks until they have all
// returned, or until ctx expires.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
