// Package errgroupx runs the long-lived loops of a process as one unit: the first loop to fail
// cancels the rest.
package errgroupx

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Group wraps errgroup.Group so that its context never outlives the group.
type Group struct {
	inner  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// WithContext creates a Group as a child of the given context.
func WithContext(ctx context.Context) *Group {
	parent, cancel := context.WithCancel(ctx)
	g, groupCtx := errgroup.WithContext(parent)
	return &Group{inner: g, ctx: groupCtx, cancel: cancel}
}

// Context is canceled when any member fails or the group is closed.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go runs f as a named member of the group. Errors, including recovered panics, are wrapped with
// the member's name and cancel the group.
func (g *Group) Go(name string, f func(ctx context.Context) error) {
	g.inner.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("%s panicked: %v\n%s", name, rec, debug.Stack())
			}
		}()
		return errors.Wrap(f(g.ctx), name)
	})
}

// Wait for all members of the group to return.
func (g *Group) Wait() error {
	return g.inner.Wait()
}

// Cancel the group without waiting for it.
func (g *Group) Cancel() {
	g.cancel()
}

// Close cancels the group and waits for it.
func (g *Group) Close() error {
	g.cancel()
	return g.Wait()
}
