package errhandler

import (
	"sync"
	"time"
)

// Cond is a condition variable with timed waits, built on the host's mutex.
// sync.Cond cannot bound a wait, which the recovery backoff needs.
//
// All methods must be called with L held.
type Cond struct {
	L     sync.Locker
	clock Clock

	// notify is closed by Broadcast to release every current waiter.
	notify chan struct{}
}

// NewCond returns a Cond that waits on l. A nil clock selects the standard clock.
func NewCond(l sync.Locker, clock Clock) *Cond {
	if clock == nil {
		clock = NewStandardClock()
	}
	return &Cond{L: l, clock: clock}
}

func (c *Cond) waitChan() chan struct{} {
	if c.notify == nil {
		c.notify = make(chan struct{})
	}
	return c.notify
}

// WaitFor atomically unlocks c.L and suspends the caller until Broadcast is
// called or d elapses, then re-locks c.L. It reports whether the wake-up came
// from Broadcast. A wake-up carries no payload: callers re-check their
// condition after WaitFor returns.
func (c *Cond) WaitFor(d time.Duration) bool {
	ch := c.waitChan()
	c.L.Unlock()
	defer c.L.Lock()

	if d <= 0 {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}

	t := c.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.Chan():
		return false
	}
}

// Wait atomically unlocks c.L and suspends the caller until Broadcast is called.
func (c *Cond) Wait() {
	ch := c.waitChan()
	c.L.Unlock()
	<-ch
	c.L.Lock()
}

// Broadcast wakes all goroutines waiting on c.
func (c *Cond) Broadcast() {
	if c.notify != nil {
		close(c.notify)
		c.notify = nil
	}
}
