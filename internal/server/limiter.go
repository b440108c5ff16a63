package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrLimiterConcurrency = errors.New("error handling request, reached concurrency limit")
	ErrLimiterDrain       = errors.New("draining requests")
)

// Limiter runs go routines limiting them by the defined concurrency.
type Limiter struct {
	// waitgroup for running routines.
	wg *sync.WaitGroup
	// routines spawned return once complete on this channel.
	doneCh chan struct{}
	// dispatcherCh is where the dispatch() method listens for funcs to run.
	dispatcherCh chan func()
	// concurrency is the maximum number of goroutines that can be running.
	concurrency int
	// mu is the guard for drain.
	mu sync.RWMutex
	// dispatched indicates the number of routines dispatched by this limiter.
	dispatched int32
	// drain is set when StopWait() is invoked, no further routines are accepted.
	drain bool
}

// NewLimiter returns a new limiting go routine runner.
// To ensure the routines spawned by Limiter are stopped, the StopWait() method should be invoked.
func NewLimiter(concurrency int) *Limiter {
	l := &Limiter{
		concurrency:  concurrency,
		wg:           &sync.WaitGroup{},
		doneCh:       make(chan struct{}),
		dispatcherCh: make(chan func()),
	}

	l.wg.Add(1)

	go l.dispatcher()

	return l
}

// Dispatch dispatches the given routine for execution
//
// The routine to be executed should be wrapped in a closure.
func (l *Limiter) Dispatch(f func()) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.drain {
		return ErrLimiterDrain
	}

	for {
		n := atomic.LoadInt32(&l.dispatched)
		if int(n) >= l.concurrency {
			return ErrLimiterConcurrency
		}

		if atomic.CompareAndSwapInt32(&l.dispatched, n, n+1) {
			break
		}
	}

	l.dispatcherCh <- f

	return nil
}

// dispatcher runs in a loop dispatching routines received over dispatcherCh for execution
// this method returns once drain is set and no dispatched routine is running.
func (l *Limiter) dispatcher() {
	defer l.wg.Done()

	stopWaitCheck := time.NewTicker(time.Millisecond * 200)
	defer stopWaitCheck.Stop()

	for {
		select {
		case f := <-l.dispatcherCh:
			l.wg.Add(1)

			go func() {
				defer l.wg.Done()
				f()
				l.doneCh <- struct{}{}
			}()

		case <-l.doneCh:
			atomic.AddInt32(&l.dispatched, ^int32(0))

		case <-stopWaitCheck.C:
			l.mu.RLock()
			done := l.drain && atomic.LoadInt32(&l.dispatched) == 0
			l.mu.RUnlock()

			if done {
				return
			}
		}
	}
}

// ActiveCount returns the count of running routines
func (l *Limiter) ActiveCount() int {
	return int(atomic.LoadInt32(&l.dispatched))
}

// StopWait prevents any further routines from being added
// and waits until all the routines complete.
func (l *Limiter) StopWait() {
	l.mu.Lock()
	l.drain = true
	l.mu.Unlock()

	l.wg.Wait()
}
