/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package transport implements the socket abstraction from spec.md §4.2:
// a uniform recv/send/close surface over plaintext TCP, TLS, and (as a
// domain-stack addition grounded on the teacher's transport.WebSocket
// branch in c2s.go) WebSocket framing, with an in-place upgrade_tls
// operation.
package transport

import (
	"crypto/tls"
	"io"
	"strings"

	"github.com/ortuman/xmppd/xml"
)

// Type identifies which concrete transport a stream is running over.
type Type int

const (
	Socket Type = iota
	WebSocket
)

func (t Type) String() string {
	if t == WebSocket {
		return "websocket"
	}
	return "socket"
}

// Transport is the abstraction c2s streams read/write through. Per
// spec.md's design notes, TLS upgrade is modeled as a transition on a
// tagged-sum socket value (see socket.go's rawSocket variants) rather than
// mutated fields sprinkled across the struct; StartTLS here is the
// transition method that performs that swap.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer

	Type() Type
	// StartTLS consumes the current plaintext socket in place and upgrades
	// to a TLS-wrapping one bound to the same underlying connection;
	// subsequent I/O through the old variant is undefined, exactly as
	// spec.md §4.2 specifies.
	StartTLS(cfg *tls.Config) error
	// WriteElement serializes and writes an XML element. includeClosing
	// matches the teacher's tr.WriteElement(element, true) call — false is
	// only used for the very first, unterminated <stream:stream> tag.
	WriteElement(e xml.XElement, includeClosing bool) error
	WriteString(s string) error
}

func serialize(e xml.XElement, includeClosing bool) string {
	var sb strings.Builder
	e.ToXML(&sb, includeClosing)
	return sb.String()
}
