/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package router implements the routing fabric and connection registry
// from spec.md §4.5/§4.7/§6: the stanza route table, the IQ route map, the
// client registry, and the public component-extension surface
// (register_stanza_route, register_iq_route, add_client_disconnect_listener
// and their inverses).
package router

import (
	"sync"

	"github.com/ortuman/xmppd/log"
	"github.com/ortuman/xmppd/xml"
)

// C2S is the contract a connected client stream must satisfy to take part
// in routing, mirrored from the teacher's router.C2S / other_examples'
// c2s.Stream interfaces.
type C2S interface {
	ID() string
	JID() *xml.JID
	Username() string
	Domain() string
	Resource() string
	IsAuthenticated() bool
	IsSecured() bool
	Presence() *xml.Presence
	SendElement(e xml.XElement)
	Disconnect(err error)
}

// DisconnectListener is notified after a client connection is torn down.
type DisconnectListener func(stm C2S)

// ErrResourceNotFound mirrors the teacher's router.ErrResourceNotFound: the
// bare JID exists but no connected resource matches.
var ErrResourceNotFound = routeErr("router: resource not found")

type routeErr string

func (e routeErr) Error() string { return string(e) }

// Router owns the two routing tables and the client registry for one
// listening endpoint (spec.md §3 "Server" ownership rules).
type Router struct {
	domain string

	stanzas *StanzaTable
	iqs     *IQTable

	mu         sync.RWMutex
	streams    map[string]C2S   // by connection id
	authed     map[string][]C2S // by bare-JID node
	listeners  []DisconnectListener
	shutdown   bool
}

var (
	instMu sync.RWMutex
	inst   *Router
)

// Initialize installs the package-level singleton, mirroring the teacher's
// router.Instance()/c2s.Instance() convention used throughout c2s.go.
func Initialize(domain string) *Router {
	instMu.Lock()
	defer instMu.Unlock()
	inst = &Router{
		domain:  domain,
		stanzas: NewStanzaTable(),
		iqs:     NewIQTable(),
		streams: make(map[string]C2S),
		authed:  make(map[string][]C2S),
	}
	return inst
}

// Instance returns the previously Initialize'd router.
func Instance() *Router {
	instMu.RLock()
	defer instMu.RUnlock()
	if inst == nil {
		log.Fatalf("router: not initialized")
	}
	return inst
}

// Shutdown tears down the singleton; used by tests.
func Shutdown() {
	instMu.Lock()
	defer instMu.Unlock()
	inst = nil
}

// DefaultLocalDomain returns the server's claimed domain.
func (r *Router) DefaultLocalDomain() string { return r.domain }

// IsLocalDomain reports whether domain is served locally. The core has a
// single server_name (spec.md §6); multi-domain virtual hosting is not
// named anywhere in spec.md, so this stays a single comparison rather than
// the teacher's list scan.
func (r *Router) IsLocalDomain(domain string) bool { return domain == r.domain }

// --- component extension surface (spec.md §6) ---

// RegisterStanzaRoute exposes StanzaTable.Register to modules (e.g. MUC).
func (r *Router) RegisterStanzaRoute(pattern *xml.JID, cb StanzaCallback, data interface{}) {
	r.stanzas.Register(pattern, cb, data)
}

// DeregisterStanzaRoute exposes StanzaTable.Deregister.
func (r *Router) DeregisterStanzaRoute(pattern *xml.JID) {
	r.stanzas.Deregister(pattern)
}

// RegisterIQRoute exposes IQTable.Register.
func (r *Router) RegisterIQRoute(namespace string, cb IQCallback, data interface{}) {
	r.iqs.Register(namespace, cb, data)
}

// DeregisterIQRoute exposes IQTable.Deregister.
func (r *Router) DeregisterIQRoute(namespace string) {
	r.iqs.Deregister(namespace)
}

// AddClientDisconnectListener registers l to be invoked whenever any client
// connection is torn down.
func (r *Router) AddClientDisconnectListener(l DisconnectListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// RemoveClientDisconnectListener does nothing: Go func values are not
// comparable, so l cannot be found among the registered listeners. A
// listener added with AddClientDisconnectListener is not removed by this
// call and stays registered for the router's lifetime.
func (r *Router) RemoveClientDisconnectListener(l DisconnectListener) {
	// no-op: see doc comment.
	_ = l
}

func (r *Router) notifyDisconnect(stm C2S) {
	r.mu.RLock()
	listeners := append([]DisconnectListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, l := range listeners {
		l(stm)
	}
}

// --- client registry (spec.md §3 "Connection" lifecycle) ---

// RegisterStream adds stm to the registry. Mirrors the teacher/other
// example's c2s.Manager.RegisterStream.
func (r *Router) RegisterStream(stm C2S) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return routeErr("router: shutdown in progress")
	}
	r.streams[stm.ID()] = stm
	log.Infof("router: registered stream (id: %s)", stm.ID())
	return nil
}

// UnregisterStream removes stm from the registry and any authenticated
// resource list, deregisters its full-JID stanza route if it had bound one,
// and notifies disconnect listeners. Idempotent (spec.md §8 invariant):
// calling it twice for the same stream id is a harmless no-op the second
// time.
func (r *Router) UnregisterStream(stm C2S) error {
	r.mu.Lock()
	if _, ok := r.streams[stm.ID()]; !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.streams, stm.ID())
	if user := stm.Username(); user != "" {
		list := r.authed[user]
		for i, s := range list {
			if s.ID() == stm.ID() {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) > 0 {
			r.authed[user] = list
		} else {
			delete(r.authed, user)
		}
	}
	r.mu.Unlock()

	if stm.Resource() != "" {
		r.stanzas.Deregister(stm.JID())
	}
	log.Infof("router: unregistered stream (id: %s)", stm.ID())
	r.notifyDisconnect(stm)
	return nil
}

// AuthenticateStream marks stm as authenticated and registers its full JID
// as a stanza route, so ordinary §4.5 routing delivers to it without any
// MUC-style special casing.
func (r *Router) AuthenticateStream(stm C2S) error {
	if stm.Resource() == "" {
		return routeErr("router: resource not yet assigned")
	}
	r.mu.Lock()
	r.authed[stm.Username()] = append(r.authed[stm.Username()], stm)
	r.mu.Unlock()

	r.stanzas.Register(stm.JID(), func(stanza xml.Stanza, data interface{}) bool {
		target := data.(C2S)
		target.SendElement(stanza)
		return true
	}, stm)
	log.Infof("router: authenticated stream (%s/%s)", stm.Username(), stm.Resource())
	return nil
}

// StreamsMatchingJID returns every connected resource that matches jid,
// mirrored from the teacher's c2s.Manager.StreamsMatchingJID.
func (r *Router) StreamsMatchingJID(jid *xml.JID) []C2S {
	if !r.IsLocalDomain(jid.Domain()) {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ret []C2S
	if node := jid.Node(); node != "" {
		for _, stm := range r.authed[node] {
			if matchesTarget(stm.JID(), jid) {
				ret = append(ret, stm)
			}
		}
		return ret
	}
	for _, list := range r.authed {
		for _, stm := range list {
			if matchesTarget(stm.JID(), jid) {
				ret = append(ret, stm)
			}
		}
	}
	return ret
}

func matchesTarget(candidate, jid *xml.JID) bool {
	if candidate.Domain() != jid.Domain() {
		return false
	}
	if jid.Node() != "" && candidate.Node() != jid.Node() {
		return false
	}
	if jid.IsFull() && candidate.Resource() != jid.Resource() {
		return false
	}
	return true
}

// BindConflict reports whether resource is already bound to bareJID's node,
// implementing spec.md scenario 5's bind-conflict check.
func (r *Router) BindConflict(bareJID *xml.JID, resource string) C2S {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, stm := range r.authed[bareJID.Node()] {
		if stm.Resource() == resource {
			return stm
		}
	}
	return nil
}

// BeginShutdown stops accepting new registrations on both routing tables
// (spec.md §4.5).
func (r *Router) BeginShutdown() {
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()
	r.stanzas.BeginShutdown()
	r.iqs.BeginShutdown()
}

// Dispatch implements the server runtime's dispatch path, spec.md §4.7:
//  1. iq with exactly one child: consult the IQ table by namespace first.
//  2. otherwise consult the stanza table by `to` (defaulting to the server
//     JID when absent).
//  3. no match: drop silently, info-level log (NoRoute is never raised as
//     an error, per spec.md §7).
func (r *Router) Dispatch(stanza xml.Stanza) {
	if iq, ok := stanza.(*xml.IQ); ok {
		if child := iq.Child(); child != nil && len(iq.Elements().All()) == 1 && child.Namespace() != "" {
			if cb, data, breaker, ok := r.iqs.Lookup(child.Namespace()); ok {
				if !InvokeIQ(breaker, cb, iq, data) {
					log.Warnf("router: iq route delivery failed (namespace: %s)", child.Namespace())
				}
				return
			}
		}
	}
	to := stanza.ToJID()
	if to == nil {
		to, _ = xml.NewJID("", r.domain, "", false)
	}
	cb, data, breaker, ok := r.stanzas.Lookup(to)
	if !ok {
		log.Infof("router: no route for %s, dropping stanza", to)
		return
	}
	if !Invoke(breaker, cb, stanza, data) {
		log.Warnf("router: stanza route delivery failed (to: %s)", to)
	}
}
