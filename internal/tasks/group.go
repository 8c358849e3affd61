// Package tasks supervises fire-and-forget background work.
package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Group runs tasks in their own goroutines. A task's error or panic is logged
// and never reaches the caller.
type Group struct {
	wg      sync.WaitGroup
	running atomic.Int64
}

// NewGroup creates an empty task group
func NewGroup() *Group {
	return &Group{}
}

// Go spawns fn. name identifies the task in logs.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	g.running.Add(1)

	go func() {
		defer g.wg.Done()
		defer g.running.Add(-1)
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Str("task", name).
					Msg("Task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				log.Debug().Err(err).Str("task", name).Msg("Task aborted by shutdown")
				return
			}
			log.Error().Err(err).Str("task", name).Msg("Task failed")
		}
	}()
}

// Running returns the number of tasks still in flight
func (g *Group) Running() int {
	return int(g.running.Load())
}

// Wait blocks until every task has returned or timeout passes.
// Returns false if tasks were still running at the deadline.
func (g *Group) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.Warn().Int("running", g.Running()).Dur("timeout", timeout).Msg("Background tasks still running at shutdown")
		return false
	}
}
