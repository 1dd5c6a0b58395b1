package session

import (
	"context"
	"time"
)

// Run drains the event queue until ctx ends. Every mutation of session,
// mirror and annotation state happens on this goroutine.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.runCtx = runCtx
	defer func() {
		cancel()
		if c.stream != nil {
			c.stream.Unsubscribe()
		}
		close(c.done)
	}()

	c.logger.Debug("session_loop_started")
	c.publishView()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("session_loop_stopped")
			return nil
		case fn := <-c.events:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

// post queues fn on the loop. Used by request goroutines and stream
// callbacks; never called from the loop itself.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// call runs fn on the loop and waits for its result.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.events <- func() { reply <- fn() }:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// request runs fn off the loop with a bounded context derived from the run
// context. The returned cancel aborts it early.
func (c *Controller) request(fn func(ctx context.Context)) context.CancelFunc {
	parent := c.runCtx
	if parent == nil {
		parent = context.Background()
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, c.requestTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	go func() {
		defer cancel()
		fn(ctx)
	}()
	return cancel
}

// publishView replaces whatever View is waiting in the updates channel.
func (c *Controller) publishView() {
	v := c.buildView()
	select {
	case c.updates <- v:
		return
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- v:
	default:
	}
}

func (c *Controller) nextTick() uint64 {
	c.tick++
	return c.tick
}

func (c *Controller) now() time.Time { return c.clock() }
