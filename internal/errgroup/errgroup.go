// Package errgroup runs a group of goroutines, collecting the first error and
// recovering panics into errors instead of crashing the process.
package errgroup

import (
	"context"
	"sync"

	"github.com/therne/errorist"
)

type Group struct {
	cancel func()

	wg sync.WaitGroup

	errOnce sync.Once
	err     error
}

// WithContext returns a Group whose derived context is cancelled the first
// time a function passed to Go returns an error or panics.
func WithContext(ctx context.Context) (*Group, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{cancel: cancel}, ctx
}

// Wait blocks until all goroutines launched with Go have returned, then
// returns the first error among them.
func (g *Group) Wait() error {
	g.wg.Wait()
	if g.cancel != nil {
		g.cancel()
	}
	return g.err
}

// Go calls the given function in a new goroutine. A panic inside f is
// recovered and treated as its error.
func (g *Group) Go(f func() error) {
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		err := func() (err error) {
			defer func() {
				if panicErr := errorist.WrapPanic(recover()); panicErr != nil {
					err = panicErr
				}
			}()
			return f()
		}()

		if err != nil {
			g.errOnce.Do(func() {
				g.err = err
				if g.cancel != nil {
					g.cancel()
				}
			})
		}
	}()
}
