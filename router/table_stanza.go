/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package router

import (
	"sync"

	"github.com/ortuman/xmppd/log"
	"github.com/ortuman/xmppd/xml"
	"github.com/sony/gobreaker"
)

// StanzaCallback is invoked when a stanza's `to` JID matches a registered
// route. Returning false signals "delivery failed, route removal
// recommended" (spec.md §4.7); the table never auto-removes on that signal,
// it only logs and lets the circuit breaker start counting the failure.
type StanzaCallback func(stanza xml.Stanza, data interface{}) bool

type stanzaRoute struct {
	pattern *xml.JID
	cb      StanzaCallback
	data    interface{}
	breaker *gobreaker.CircuitBreaker
}

// StanzaTable is the JID-wildcard-matching route list from spec.md §4.5,
// implemented as Go's native ordered slice rather than the teacher's
// intrusive linked list (spec.md §9 design notes): first-match-wins and
// insertion-order determinism are the only contract that survives the
// translation.
type StanzaTable struct {
	mu       sync.RWMutex
	routes   []*stanzaRoute
	shutdown bool
}

// NewStanzaTable creates an empty table.
func NewStanzaTable() *StanzaTable {
	return &StanzaTable{}
}

// Register appends a new route unless an entry with an equal JID pattern
// already exists, in which case it logs a warning and no-ops (spec.md
// §4.5, §8 "Duplicate registration" scenario).
func (t *StanzaTable) Register(pattern *xml.JID, cb StanzaCallback, data interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown {
		log.Warnf("router: stanza route registration rejected, shutdown in progress (pattern: %s)", pattern)
		return
	}
	for _, r := range t.routes {
		if r.pattern.Equal(pattern) {
			log.Warnf("router: duplicate stanza route registration ignored (pattern: %s)", pattern)
			return
		}
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "stanza-route:" + pattern.String(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	t.routes = append(t.routes, &stanzaRoute{pattern: pattern, cb: cb, data: data, breaker: breaker})
}

// Deregister removes the first entry whose pattern equals pattern. A
// missing pattern is a warning, no-op (spec.md §4.5). Deregister only
// unlinks the entry from the slice; any in-flight callback invoked from a
// prior Lookup already holds its own copy of the route, so this is safe to
// call from within that very callback (spec.md §8's self-deregister-safety
// invariant).
func (t *StanzaTable) Deregister(pattern *xml.JID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range t.routes {
		if r.pattern.Equal(pattern) {
			t.routes = append(t.routes[:i], t.routes[i+1:]...)
			return
		}
	}
	log.Warnf("router: deregister of unknown stanza route ignored (pattern: %s)", pattern)
}

// Lookup performs the linear first-match scan from spec.md §4.5 and
// returns a snapshot (not a live pointer) of the matching route so that
// mutation of the table during dispatch (including the match's own
// deregistration) cannot invalidate the value the caller is about to
// invoke.
func (t *StanzaTable) Lookup(target *xml.JID) (cb StanzaCallback, data interface{}, breaker *gobreaker.CircuitBreaker, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.routes {
		if xml.MatchesRoute(target, r.pattern) {
			return r.cb, r.data, r.breaker, true
		}
	}
	return nil, nil, nil, false
}

// BeginShutdown rejects further registrations (spec.md §4.5: "both tables
// reject registration while shutdown is in progress").
func (t *StanzaTable) BeginShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shutdown = true
}

// Invoke runs cb through its circuit breaker, translating a breaker trip or
// a recovered panic into the same "false" signal an ordinary failed
// delivery would produce.
func Invoke(breaker *gobreaker.CircuitBreaker, cb StanzaCallback, stanza xml.Stanza, data interface{}) (ok bool) {
	// the breaker records a panic as a failure and re-raises it
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	result, err := breaker.Execute(func() (interface{}, error) {
		delivered := cb(stanza, data)
		if !delivered {
			return false, errDeliveryFailed
		}
		return true, nil
	})
	if err != nil {
		return false
	}
	return result.(bool)
}

var errDeliveryFailed = deliveryFailedErr{}

type deliveryFailedErr struct{}

func (deliveryFailedErr) Error() string { return "router: route callback reported delivery failure" }
