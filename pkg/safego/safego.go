package safego

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

// Execute runs fn in a new goroutine and recovers from any panic inside it,
// logging the panic value and stack under goroutineName.
func Execute(ctx context.Context, logger domain.Logger, goroutineName string, fn func()) {
	go run(ctx, logger, goroutineName, fn)
}

func run(ctx context.Context, logger domain.Logger, goroutineName string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logCtx := ctx
			if ctx.Err() != nil {
				logCtx = context.Background()
			}
			logger.Error(logCtx, fmt.Sprintf("Panic recovered in goroutine: %s", goroutineName),
				"panic_info", fmt.Sprintf("%v", r),
				"stacktrace", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// Group tracks goroutines started through it. Once closed it refuses new
// goroutines, so CloseAndWait never races with a late Go call.
type Group struct {
	logger domain.Logger
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewGroup returns an open Group logging panics to logger.
func NewGroup(logger domain.Logger) *Group {
	return &Group{logger: logger}
}

// Go starts fn unless the group is closed. It reports whether fn was started.
func (g *Group) Go(ctx context.Context, goroutineName string, fn func()) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		run(ctx, g.logger, goroutineName, fn)
	}()
	return true
}

// CloseAndWait closes the group and waits for every started goroutine.
func (g *Group) CloseAndWait() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.wg.Wait()
}
