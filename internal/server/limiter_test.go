package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func Test_Limiter_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(5)

	returnCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(func() {
			returnCh <- struct{}{}
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < count; i++ {
		<-returnCh
	}

	limiter.StopWait()
}

func Test_Limiter_Run_limits(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(3)

	returnCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(func() {
			<-returnCh
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// add another func exceeding concurrency limit of 3
	err := limiter.Dispatch(func() {
		t.Error("expected limiter to limit concurrency")
	})

	assert.ErrorIs(t, err, ErrLimiterConcurrency)

	// unblock routines
	for i := 0; i < count; i++ {
		returnCh <- struct{}{}
	}

	limiter.StopWait()
}

func Test_Limiter_Active(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(5)

	// release causes the job to return
	releaseCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(func() {
			<-releaseCh
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	assert.Equal(t, count, limiter.ActiveCount())

	for i := 0; i < count; i++ {
		releaseCh <- struct{}{}
	}

	limiter.StopWait()

	assert.Equal(t, 0, limiter.ActiveCount())
}

func Test_Limiter_StopWait(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(5)

	returnCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(func() {
			time.Sleep(100 * time.Millisecond)
			returnCh <- struct{}{}
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	stopped := make(chan struct{})

	go func() {
		limiter.StopWait()
		close(stopped)
	}()

	// give a few ms for StopWait to set drain
	time.Sleep(10 * time.Millisecond)

	err := limiter.Dispatch(func() {
		t.Error("expected limiter to not accept funcs after StopWait()")
	})

	assert.ErrorIs(t, err, ErrLimiterDrain)

	for i := 0; i < count; i++ {
		<-returnCh
	}

	<-stopped
}
