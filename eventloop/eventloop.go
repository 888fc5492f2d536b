/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package eventloop implements the readiness-notification adapter from
// spec.md §4.3: Register/Deregister of per-fd callbacks, invoked at most
// once per readiness event, never concurrently for the same fd, with
// Deregister-during-callback guaranteed to take effect before the next
// dispatch.
//
// The teacher delegates this entirely to an external OS event loop and
// drives each connection with a goroutine blocked in a synchronous Read
// (c2s.go's `go s.doRead()`); Go's native blocking-I/O model makes a raw
// epoll/kqueue adapter pure ceremony; this package keeps the public
// Register/Deregister contract spec.md names as a first-class component —
// each registration owns the goroutine that waits on Poll and serializes
// callback invocation — while the actual readiness source underneath is
// still Go's own blocking I/O and netpoller, not hand-rolled syscalls.
package eventloop

import "sync"

// FD is an opaque per-connection identifier. The core never needs a raw OS
// file descriptor — net.Conn already encapsulates one — so this is just a
// monotonically increasing handle a Loop hands out.
type FD int

// Callback is invoked when fd becomes "ready" (i.e. Poll observed newly
// available data, or for the listening socket, a pending connection).
type Callback func()

// Poll reports readiness for a registered fd: it should block until there
// is work to do, then return nil, or return an error (e.g. io.EOF) when the
// fd is permanently done and should be deregistered.
type Poll func() error

type registration struct {
	mu   sync.Mutex
	done chan struct{}
	cb   Callback
}

// Loop is the registry of active fd callbacks.
type Loop struct {
	mu     sync.Mutex
	regs   map[FD]*registration
	nextFD FD
}

// New creates an empty event loop adapter.
func New() *Loop {
	return &Loop{regs: make(map[FD]*registration)}
}

// NextFD hands out the next synthetic fd identifier.
func (l *Loop) NextFD() FD {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextFD++
	return l.nextFD
}

// Register starts a dedicated goroutine that repeatedly calls poll and
// invokes cb exactly once per poll observation — never concurrently, and
// never after Deregister has been called for this fd. cb runs on a poll
// error too (with the error stashed wherever poll's caller left it, e.g.
// pendingErr) so the owner gets a chance to react — close the connection,
// deregister routes — before the fd is dropped; the loop itself deregisters
// right afterward. Register returns immediately; the goroutine runs until
// poll returns an error or Deregister is called.
func (l *Loop) Register(fd FD, poll Poll, cb Callback) {
	r := &registration{done: make(chan struct{}), cb: cb}

	l.mu.Lock()
	l.regs[fd] = r
	l.mu.Unlock()

	go func() {
		for {
			select {
			case <-r.done:
				return
			default:
			}
			pollErr := poll()

			r.mu.Lock()
			select {
			case <-r.done:
				r.mu.Unlock()
				return
			default:
			}
			r.cb()
			r.mu.Unlock()

			if pollErr != nil {
				l.Deregister(fd)
				return
			}
		}
	}()
}

// Deregister stops delivering events for fd. Safe to call from within the
// fd's own callback (spec.md §4.3): it does not take r.mu, which the
// dispatch loop holds while running cb. It closes r.done, which the dispatch
// loop checks before every poll and again before every callback, so a call
// made from within cb takes effect before the next dispatch for that fd.
func (l *Loop) Deregister(fd FD) {
	l.mu.Lock()
	r, ok := l.regs[fd]
	if ok {
		delete(l.regs, fd)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}
