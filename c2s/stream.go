/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package c2s implements the connection state machine from spec.md §4.6:
// each client progresses from plaintext stream negotiation through
// optional STARTTLS, SASL, resource bind and session establishment, after
// which stanzas flow into the routing fabric. Transformed from the
// teacher's c2s.go, trimmed to the modules spec.md actually names (no
// roster/offline/vcard/disco — those are the module-loading facility's
// concern, outside this core) and rewired so that authenticated dispatch
// goes through router.Router.Dispatch instead of a per-connection handler
// list.
package c2s

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ortuman/xmppd/auth"
	"github.com/ortuman/xmppd/authdir"
	"github.com/ortuman/xmppd/config"
	"github.com/ortuman/xmppd/eventloop"
	"github.com/ortuman/xmppd/log"
	"github.com/ortuman/xmppd/router"
	"github.com/ortuman/xmppd/streamerror"
	"github.com/ortuman/xmppd/transport"
	"github.com/ortuman/xmppd/xml"
	"github.com/pborman/uuid"
)

const streamMailboxSize = 64

type state uint32

const (
	connecting state = iota
	connected
	authenticating
	authenticated
	sessionStarted
	disconnected
)

const (
	jabberClientNamespace = "jabber:client"
	framedStreamNamespace = "urn:ietf:params:xml:ns:xmpp-framing"
	streamNamespace       = "http://etherx.jabber.org/streams"
	tlsNamespace          = "urn:ietf:params:xml:ns:xmpp-tls"
	bindNamespace         = "urn:ietf:params:xml:ns:xmpp-bind"
	sessionNamespace      = "urn:ietf:params:xml:ns:xmpp-session"
	saslNamespace         = "urn:ietf:params:xml:ns:xmpp-sasl"
)

// Stream is a single client-to-server connection and its negotiation
// state. It satisfies router.C2S.
type Stream struct {
	id        string
	cfg       *config.Config
	tlsCfg    *tls.Config
	tr        transport.Transport
	parser    *xml.Parser
	connectTm *time.Timer
	st        uint32

	ctx         *router.Context
	authrs      []auth.Authenticator
	activeAuthr auth.Authenticator

	router  *router.Router
	loop    *eventloop.Loop
	fd      eventloop.FD
	actorCh chan func()

	pendingElem xml.XElement
	pendingErr  error
}

const (
	usernameCtxKey      = "username"
	domainCtxKey        = "domain"
	resourceCtxKey      = "resource"
	jidCtxKey           = "jid"
	securedCtxKey       = "secured"
	authenticatedCtxKey = "authenticated"
	presenceCtxKey      = "presence"
)

// New creates and starts a connection: it registers the stream's fd with
// loop, offers unauthenticated features once the peer opens its stream,
// and begins reading.
func New(tr transport.Transport, tlsCfg *tls.Config, cfg *config.Config, r *router.Router, dir *authdir.Directory, loop *eventloop.Loop) *Stream {
	s := &Stream{
		id:      uuid.New(),
		cfg:     cfg,
		tlsCfg:  tlsCfg,
		tr:      tr,
		parser:  xml.NewParser(bufferedReader(tr, cfg.BufferSize), cfg.MaxStanzaSize),
		ctx:     router.NewContext(),
		router:  r,
		loop:    loop,
		actorCh: make(chan func(), streamMailboxSize),
	}
	s.setState(connecting)

	secured := tr.Type() != transport.Socket
	s.ctx.SetBool(secured, securedCtxKey)
	s.ctx.SetString(r.DefaultLocalDomain(), domainCtxKey)

	j, _ := xml.NewJID("", r.DefaultLocalDomain(), "", true)
	s.ctx.SetObject(j, jidCtxKey)

	for _, mech := range cfg.SASL {
		if mech == "plain" {
			s.authrs = append(s.authrs, auth.NewPlain(dir))
		}
	}

	if cfg.ConnectTimeout > 0 {
		s.connectTm = time.AfterFunc(time.Duration(cfg.ConnectTimeout)*time.Second, s.connectTimeout)
	}

	s.fd = loop.NextFD()
	loop.Register(s.fd, s.poll, s.onReadable)
	go s.actorLoop()

	if err := r.RegisterStream(s); err != nil {
		log.Error(err)
	}
	return s
}

// ID returns the connection identifier.
func (s *Stream) ID() string { return s.id }

// Context returns the per-connection key/value store.
func (s *Stream) Context() *router.Context { return s.ctx }

func (s *Stream) Username() string { return s.ctx.String(usernameCtxKey) }
func (s *Stream) Domain() string   { return s.ctx.String(domainCtxKey) }
func (s *Stream) Resource() string { return s.ctx.String(resourceCtxKey) }

func (s *Stream) JID() *xml.JID { return s.ctx.Object(jidCtxKey).(*xml.JID) }

func (s *Stream) IsAuthenticated() bool { return s.ctx.Bool(authenticatedCtxKey) }
func (s *Stream) IsSecured() bool       { return s.ctx.Bool(securedCtxKey) }

func (s *Stream) Presence() *xml.Presence {
	if p, ok := s.ctx.Object(presenceCtxKey).(*xml.Presence); ok {
		return p
	}
	return nil
}

// SendElement queues element to be written on the stream's own goroutine.
// A route callback may still hold a reference to stm after it has
// disconnected (spec.md §8); this is silently dropped rather than racing
// the actor mailbox's close.
func (s *Stream) SendElement(element xml.XElement) {
	if s.getState() == disconnected {
		return
	}
	s.actorCh <- func() { s.writeElement(element) }
}

// Disconnect tears down the connection, reporting err if non-nil.
func (s *Stream) Disconnect(err error) {
	if s.getState() == disconnected {
		return
	}
	s.actorCh <- func() { s.disconnect(err) }
}

func (s *Stream) connectTimeout() {
	if s.getState() == disconnected {
		return
	}
	s.actorCh <- func() { s.disconnect(streamerror.ErrConnectionTimeout) }
}

// poll runs on the eventloop goroutine dedicated to this stream's fd: it
// blocks for exactly one parsed element (spec.md §4.3's readiness
// semantics) and stashes the result for onReadable to hand to the actor.
func (s *Stream) poll() error {
	elem, err := s.parser.ParseElement()
	s.pendingElem, s.pendingErr = elem, err
	if err != nil {
		return err
	}
	return nil
}

func (s *Stream) onReadable() {
	if s.getState() == disconnected {
		return
	}
	elem, err := s.pendingElem, s.pendingErr
	// Wait until the actor has handled the element, so that a parser
	// restart it triggers (STARTTLS, SASL success) is in place before the
	// next poll reads from s.parser.
	done := make(chan struct{})
	s.actorCh <- func() {
		defer close(done)
		s.readElement(elem, err)
	}
	<-done
}

func (s *Stream) actorLoop() {
	for f := range s.actorCh {
		f()
	}
}

func (s *Stream) readElement(elem xml.XElement, err error) {
	if err == nil {
		log.Debugf("RECV: %s", elem)
		s.handleElement(elem)
		return
	}
	if s.getState() == disconnected {
		return
	}
	s.disconnect(classifyReadError(err))
}

func classifyReadError(err error) error {
	switch err {
	case xml.ErrStreamClosedByPeer:
		return nil
	case xml.ErrTooLargeStanza:
		return streamerror.ErrPolicyViolation
	default:
		return streamerror.ErrInvalidXML
	}
}

func (s *Stream) writeElement(element xml.XElement) {
	log.Debugf("SEND: %s", element)
	if err := s.tr.WriteElement(element, true); err != nil {
		s.disconnect(err)
	}
}

func (s *Stream) setState(st state) { atomic.StoreUint32(&s.st, uint32(st)) }
func (s *Stream) getState() state   { return state(atomic.LoadUint32(&s.st)) }

func (s *Stream) handleElement(elem xml.XElement) {
	switch s.getState() {
	case connecting:
		s.handleConnecting(elem)
	case connected:
		s.handleConnected(elem)
	case authenticating:
		s.handleAuthenticating(elem)
	case authenticated:
		s.handleAuthenticated(elem)
	case sessionStarted:
		s.handleSessionStarted(elem)
	}
}

func (s *Stream) handleConnecting(elem xml.XElement) {
	if s.connectTm != nil {
		s.connectTm.Stop()
		s.connectTm = nil
	}
	if err := s.validateStreamElement(elem); err != nil {
		s.disconnectWithStreamError(err)
		return
	}
	s.ctx.SetString(elem.To(), domainCtxKey)
	s.openStream()

	features := xml.NewElementName("stream:features")

	if !s.IsAuthenticated() {
		features.AppendElements(s.unauthenticatedFeatures())
		s.setState(connected)
	} else {
		features.AppendElements(s.authenticatedFeatures())
		s.setState(authenticated)
	}
	s.writeElement(features)
}

func (s *Stream) unauthenticatedFeatures() []xml.XElement {
	var features []xml.XElement

	tlsAvailable := s.tr.Type() == transport.Socket && s.tlsCfg != nil
	if tlsAvailable && !s.IsSecured() {
		startTLS := xml.NewElementNamespace("starttls", tlsNamespace)
		startTLS.AppendElement(xml.NewElementName("required"))
		features = append(features, startTLS)
	}

	offerSASL := !tlsAvailable || s.IsSecured()
	if offerSASL && len(s.authrs) > 0 {
		mechanisms := xml.NewElementNamespace("mechanisms", saslNamespace)
		for _, a := range s.authrs {
			m := xml.NewElementName("mechanism")
			m.SetText(a.Mechanism())
			mechanisms.AppendElement(m)
		}
		features = append(features, mechanisms)
	}
	return features
}

func (s *Stream) authenticatedFeatures() []xml.XElement {
	bind := xml.NewElementNamespace("bind", bindNamespace)
	bind.AppendElement(xml.NewElementName("required"))
	session := xml.NewElementNamespace("session", sessionNamespace)
	return []xml.XElement{bind, session}
}

func (s *Stream) handleConnected(elem xml.XElement) {
	isWebSocketClose := s.tr.Type() == transport.WebSocket && elem.Name() == "close"
	if isWebSocketClose {
		s.disconnect(nil)
		return
	}
	switch elem.Name() {
	case "starttls":
		if elem.Namespace() != "" && elem.Namespace() != tlsNamespace {
			s.disconnectWithStreamError(streamerror.ErrInvalidNamespace)
			return
		}
		s.proceedStartTLS()

	case "auth":
		if elem.Namespace() != saslNamespace {
			s.disconnectWithStreamError(streamerror.ErrInvalidNamespace)
			return
		}
		s.startAuthentication(elem)

	case "message", "presence", "iq":
		s.disconnectWithStreamError(streamerror.ErrNotAuthorized)

	default:
		s.disconnectWithStreamError(streamerror.ErrUnsupportedStanzaType)
	}
}

func (s *Stream) handleAuthenticating(elem xml.XElement) {
	if elem.Namespace() != saslNamespace {
		s.disconnectWithStreamError(streamerror.ErrInvalidNamespace)
		return
	}
	authr := s.activeAuthr
	if s.continueAuthentication(elem, authr) == nil && authr.Authenticated() {
		s.finishAuthentication(authr.Username())
	}
}

func (s *Stream) handleAuthenticated(elem xml.XElement) {
	isWebSocketClose := s.tr.Type() == transport.WebSocket && elem.Name() == "close"
	if isWebSocketClose {
		s.disconnect(nil)
		return
	}
	if elem.Name() != "iq" {
		s.disconnectWithStreamError(streamerror.ErrUnsupportedStanzaType)
		return
	}
	stanza, err := s.buildStanza(elem, true)
	if err != nil {
		s.handleElementError(elem, err)
		return
	}
	iq := stanza.(*xml.IQ)
	if s.Resource() == "" {
		s.bindResource(iq)
	} else {
		s.startSession(iq)
	}
}

func (s *Stream) handleSessionStarted(elem xml.XElement) {
	isWebSocketClose := s.tr.Type() == transport.WebSocket && elem.Name() == "close"
	if isWebSocketClose {
		s.disconnect(nil)
		return
	}
	stanza, err := s.buildStanza(elem, true)
	if err != nil {
		s.handleElementError(elem, err)
		return
	}
	if presence, ok := stanza.(*xml.Presence); ok && presence.ToJID().Equal(s.JID().ToBareJID()) {
		s.ctx.SetObject(presence, presenceCtxKey)
	}
	s.router.Dispatch(stanza)
}

func (s *Stream) proceedStartTLS() {
	if s.IsSecured() {
		s.disconnectWithStreamError(streamerror.ErrNotAuthorized)
		return
	}
	s.ctx.SetBool(true, securedCtxKey)
	s.writeElement(xml.NewElementNamespace("proceed", tlsNamespace))
	if err := s.tr.StartTLS(s.tlsCfg); err != nil {
		s.disconnect(streamerror.ErrInvalidXML)
		return
	}
	log.Infof("c2s: secured stream (id: %s)", s.id)
	s.restart()
}

func (s *Stream) startAuthentication(elem xml.XElement) {
	mechanism := elem.Attributes().Get("mechanism")
	for _, a := range s.authrs {
		if a.Mechanism() != mechanism {
			continue
		}
		if s.continueAuthentication(elem, a) != nil {
			return
		}
		if a.Authenticated() {
			s.finishAuthentication(a.Username())
		} else {
			s.activeAuthr = a
			s.setState(authenticating)
		}
		return
	}
	failure := xml.NewElementNamespace("failure", saslNamespace)
	failure.AppendElement(xml.NewElementName("invalid-mechanism"))
	s.writeElement(failure)
}

func (s *Stream) continueAuthentication(elem xml.XElement, authr auth.Authenticator) error {
	err := authr.ProcessElement(elem)
	if saslErr, ok := err.(*auth.SASLError); ok {
		s.failAuthentication(saslErr.Element())
	} else if err != nil {
		log.Error(err)
		s.failAuthentication(auth.ErrSASLTemporaryAuthFailure.Element())
	}
	return err
}

func (s *Stream) finishAuthentication(username string) {
	if s.activeAuthr != nil {
		s.activeAuthr.Reset()
		s.activeAuthr = nil
	}
	j, _ := xml.NewJID(username, s.Domain(), "", true)
	s.ctx.SetString(username, usernameCtxKey)
	s.ctx.SetBool(true, authenticatedCtxKey)
	s.ctx.SetObject(j, jidCtxKey)
	s.writeElement(xml.NewElementNamespace("success", saslNamespace))
	s.restart()
}

func (s *Stream) failAuthentication(elem xml.XElement) {
	failure := xml.NewElementNamespace("failure", saslNamespace)
	failure.AppendElement(elem)
	s.writeElement(failure)
	if s.activeAuthr != nil {
		s.activeAuthr.Reset()
		s.activeAuthr = nil
	}
	s.setState(connected)
}

// bindResource implements spec.md §4.6's bind transition, carrying the
// teacher's three resource-conflict policies (SPEC_FULL.md §4).
func (s *Stream) bindResource(iq *xml.IQ) {
	bind := iq.Elements().ChildNamespace("bind", bindNamespace)
	if bind == nil {
		s.writeElement(iq.NotAllowedError())
		return
	}
	var resource string
	if resEl := bind.Elements().Child("resource"); resEl != nil {
		resource = resEl.Text()
	}
	if resource == "" {
		resource = uuid.New()
	}

	bareJID, _ := xml.NewJID(s.Username(), s.Domain(), "", true)
	if conflicting := s.router.BindConflict(bareJID, resource); conflicting != nil {
		switch s.cfg.ResourceConflict {
		case config.Override:
			resource = uuid.New()
		case config.Replace:
			conflicting.Disconnect(streamerror.ErrResourceConstraint)
		default:
			s.writeElement(iq.ConflictError())
			return
		}
	}

	userJID, err := xml.NewJID(s.Username(), s.Domain(), resource, true)
	if err != nil {
		s.writeElement(iq.BadRequestError())
		return
	}
	s.ctx.SetString(resource, resourceCtxKey)
	s.ctx.SetObject(userJID, jidCtxKey)

	log.Infof("c2s: bound resource (%s/%s)", s.Username(), s.Resource())

	result := xml.NewIQType(iq.ID(), xml.ResultType)
	bindResult := xml.NewElementNamespace("bind", bindNamespace)
	jidEl := xml.NewElementName("jid")
	jidEl.SetText(userJID.String())
	bindResult.AppendElement(jidEl)
	result.AppendElement(bindResult)
	s.writeElement(result)

	if err := s.router.AuthenticateStream(s); err != nil {
		log.Error(err)
	}
}

func (s *Stream) startSession(iq *xml.IQ) {
	if s.Resource() == "" {
		s.Disconnect(streamerror.ErrNotAuthorized)
		return
	}
	if iq.Elements().ChildNamespace("session", sessionNamespace) == nil {
		s.writeElement(iq.NotAllowedError())
		return
	}
	s.writeElement(iq.ResultIQ())
	s.setState(sessionStarted)
}

func (s *Stream) openStream() {
	if s.tr.Type() == transport.WebSocket {
		open := xml.NewElementName("open")
		open.SetAttribute("xmlns", framedStreamNamespace)
		open.SetAttribute("id", s.id)
		open.SetAttribute("from", s.Domain())
		open.SetAttribute("version", "1.0")
		if err := s.tr.WriteElement(open, true); err != nil {
			log.Error(err)
		}
		return
	}

	ops := xml.NewElementName("stream:stream")
	ops.SetAttribute("xmlns", jabberClientNamespace)
	ops.SetAttribute("xmlns:stream", streamNamespace)
	ops.SetAttribute("id", s.id)
	ops.SetAttribute("from", s.Domain())
	ops.SetAttribute("version", "1.0")

	if err := s.tr.WriteString(`<?xml version="1.0"?>`); err != nil {
		log.Error(err)
	}
	if err := s.tr.WriteElement(ops, false); err != nil {
		log.Error(err)
	}
}

func (s *Stream) buildStanza(elem xml.XElement, validateFrom bool) (xml.Stanza, error) {
	if err := s.validateNamespace(elem); err != nil {
		return nil, err
	}
	fromJID, toJID, err := s.extractAddresses(elem, validateFrom)
	if err != nil {
		return nil, err
	}
	switch elem.Name() {
	case "iq":
		iq, err := xml.NewIQFromElement(elem, fromJID, toJID)
		if err != nil {
			return nil, xml.ErrBadRequest
		}
		return iq, nil
	case "presence":
		return xml.NewPresenceFromElement(elem, fromJID, toJID)
	case "message":
		return xml.NewMessageFromElement(elem, fromJID, toJID)
	}
	return nil, streamerror.ErrUnsupportedStanzaType
}

func (s *Stream) handleElementError(elem xml.XElement, err error) {
	if strmErr, ok := err.(*streamerror.Error); ok {
		s.disconnectWithStreamError(strmErr)
	} else if stanzaErr, ok := err.(*xml.StanzaError); ok {
		s.writeElement(xml.NewErrorElementFromElement(elem, stanzaErr, nil))
	} else {
		log.Error(err)
	}
}

func (s *Stream) validateStreamElement(elem xml.XElement) *streamerror.Error {
	switch s.tr.Type() {
	case transport.Socket:
		if elem.Name() != "stream:stream" {
			return streamerror.ErrUnsupportedStanzaType
		}
		if elem.Namespace() != jabberClientNamespace || elem.Attributes().Get("xmlns:stream") != streamNamespace {
			return streamerror.ErrInvalidNamespace
		}
	case transport.WebSocket:
		if elem.Name() != "open" {
			return streamerror.ErrUnsupportedStanzaType
		}
		if elem.Namespace() != framedStreamNamespace {
			return streamerror.ErrInvalidNamespace
		}
	}
	if to := elem.To(); to != "" && !s.router.IsLocalDomain(to) {
		return streamerror.ErrHostUnknown
	}
	return nil
}

func (s *Stream) validateNamespace(elem xml.XElement) *streamerror.Error {
	ns := elem.Namespace()
	if ns == "" || ns == jabberClientNamespace {
		return nil
	}
	return streamerror.ErrInvalidNamespace
}

func (s *Stream) extractAddresses(elem xml.XElement, validateFrom bool) (from, to *xml.JID, err error) {
	fromAttr := elem.From()
	if validateFrom && fromAttr != "" && !s.isValidFrom(fromAttr) {
		return nil, nil, streamerror.ErrInvalidFrom
	}
	from = s.JID()

	toAttr := elem.To()
	if toAttr != "" {
		to, err = xml.ParseJID(toAttr, false)
		if err != nil {
			return nil, nil, xml.ErrJidMalformed
		}
	} else {
		to = s.JID().ToBareJID()
	}
	return from, to, nil
}

func (s *Stream) isValidFrom(from string) bool {
	j, err := xml.ParseJID(from, false)
	if err != nil {
		return false
	}
	user := s.JID()
	if j.Node() != user.Node() || j.Domain() != user.Domain() {
		return false
	}
	if j.Resource() != "" && j.Resource() != user.Resource() {
		return false
	}
	return true
}

func (s *Stream) disconnect(err error) {
	switch v := err.(type) {
	case nil:
		s.disconnectClosingStream(false)
	case *streamerror.Error:
		s.disconnectWithStreamError(v)
	default:
		log.Error(err)
		s.disconnectClosingStream(false)
	}
}

func (s *Stream) disconnectWithStreamError(err *streamerror.Error) {
	if s.getState() == connecting {
		s.openStream()
	}
	se := xml.NewElementName("stream:error")
	se.AppendElement(xml.NewElementNamespace(err.Condition, err.Namespace()))
	s.writeElement(se)
	s.disconnectClosingStream(true)
}

// disconnectClosingStream runs the connection-destruction sequence from
// spec.md §3, in order: deregister fd, deregister routes (via
// UnregisterStream), close socket, release parser state. It is idempotent
// (spec.md §8): a second call observes getState() == disconnected and the
// eventloop Deregister/UnregisterStream calls are themselves no-ops on a
// repeat.
func (s *Stream) disconnectClosingStream(closeStream bool) {
	if s.getState() == disconnected {
		return
	}
	if presence := s.Presence(); presence != nil && presence.IsAvailable() {
		offline := xml.NewPresence(s.JID(), s.JID(), xml.UnavailableType)
		s.router.Dispatch(offline)
	}
	if closeStream {
		switch s.tr.Type() {
		case transport.Socket:
			s.tr.WriteString("</stream:stream>")
		case transport.WebSocket:
			s.tr.WriteString(fmt.Sprintf(`<close xmlns="%s" />`, framedStreamNamespace))
		}
	}
	s.ctx.Terminate()
	s.loop.Deregister(s.fd)
	if err := s.router.UnregisterStream(s); err != nil {
		log.Error(err)
	}
	s.setState(disconnected)
	s.tr.Close()
	close(s.actorCh)
}

// restart discards the current parser (and any partial buffer inside it)
// and creates a fresh one, per spec.md §4.4's STARTTLS/SASL reset contract.
func (s *Stream) restart() {
	s.parser = xml.NewParser(bufferedReader(s.tr, s.cfg.BufferSize), s.cfg.MaxStanzaSize)
	s.setState(connecting)
}

// bufferedReader sizes each connection's own read buffer from
// config.Config.BufferSize (spec.md §6, §9: "each connection should own its
// own buffer, sized from configuration, to preserve re-entrancy"). A
// non-positive size falls back to bufio's own default rather than an
// unbounded read, since the XML decoder already needs some buffering to
// read efficiently byte-by-byte off the transport.
func bufferedReader(tr transport.Transport, size int) *bufio.Reader {
	if size <= 0 {
		return bufio.NewReader(tr)
	}
	return bufio.NewReaderSize(tr, size)
}
