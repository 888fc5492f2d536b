/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package eventloop

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoop_NextFDIsMonotonic(t *testing.T) {
	l := New()
	a := l.NextFD()
	b := l.NextFD()
	require.NotEqual(t, a, b)
}

func TestLoop_RegisterInvokesCallbackOnReadiness(t *testing.T) {
	l := New()
	fd := l.NextFD()

	var polls int32
	invoked := make(chan struct{}, 1)

	l.Register(fd, func() error {
		if atomic.AddInt32(&polls, 1) == 1 {
			return nil
		}
		return errors.New("done")
	}, func() {
		select {
		case invoked <- struct{}{}:
		default:
		}
	})

	select {
	case <-invoked:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was never invoked")
	}
}

func TestLoop_PollErrorDeregisters(t *testing.T) {
	l := New()
	fd := l.NextFD()

	l.Register(fd, func() error {
		return errors.New("eof")
	}, func() {})

	// give the registration goroutine a moment to observe the error and
	// deregister itself.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		_, ok := l.regs[fd]
		l.mu.Unlock()
		if !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("fd was never deregistered after poll error")
}

func TestLoop_DeregisterIsIdempotent(t *testing.T) {
	l := New()
	fd := l.NextFD()
	var mu sync.Mutex
	calls := 0

	l.Register(fd, func() error { return errors.New("done") }, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	l.Deregister(fd)
	require.NotPanics(t, func() { l.Deregister(fd) })
}
