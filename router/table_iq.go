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

// IQCallback is invoked when an iq's single child element's namespace
// matches a registered route.
type IQCallback func(iq *xml.IQ, data interface{}) bool

type iqRoute struct {
	cb      IQCallback
	data    interface{}
	breaker *gobreaker.CircuitBreaker
}

// IQTable is the namespace-keyed IQ route map from spec.md §4.5: O(1)
// expected lookup, implemented with Go's native map rather than the
// teacher's open-hashing macros (spec.md §9 design notes).
type IQTable struct {
	mu       sync.RWMutex
	routes   map[string]*iqRoute
	shutdown bool
}

// NewIQTable creates an empty table.
func NewIQTable() *IQTable {
	return &IQTable{routes: make(map[string]*iqRoute)}
}

// Register binds namespace to cb unless already bound (spec.md §4.5).
func (t *IQTable) Register(namespace string, cb IQCallback, data interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown {
		log.Warnf("router: iq route registration rejected, shutdown in progress (namespace: %s)", namespace)
		return
	}
	if _, ok := t.routes[namespace]; ok {
		log.Warnf("router: duplicate iq route registration ignored (namespace: %s)", namespace)
		return
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "iq-route:" + namespace,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	t.routes[namespace] = &iqRoute{cb: cb, data: data, breaker: breaker}
}

// Deregister removes namespace's route, logging if absent.
func (t *IQTable) Deregister(namespace string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.routes[namespace]; !ok {
		log.Warnf("router: deregister of unknown iq route ignored (namespace: %s)", namespace)
		return
	}
	delete(t.routes, namespace)
}

// Lookup returns a snapshot of the route bound to namespace, if any.
func (t *IQTable) Lookup(namespace string) (cb IQCallback, data interface{}, breaker *gobreaker.CircuitBreaker, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.routes[namespace]
	if !ok {
		return nil, nil, nil, false
	}
	return r.cb, r.data, r.breaker, true
}

// BeginShutdown rejects further registrations.
func (t *IQTable) BeginShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shutdown = true
}

// InvokeIQ runs cb through its circuit breaker the same way Invoke does for
// stanza routes.
func InvokeIQ(breaker *gobreaker.CircuitBreaker, cb IQCallback, iq *xml.IQ, data interface{}) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	result, err := breaker.Execute(func() (interface{}, error) {
		delivered := cb(iq, data)
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
