/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package auth implements the SASL layer the connection state machine
// drives during the `sasl` state (spec.md §4.6), grounded on the teacher's
// auth.Authenticator interface (c2s.go's s.authrs / s.activeAuthr).
package auth

import (
	"encoding/base64"
	"strings"

	"github.com/ortuman/xmppd/xml"
)

const saslNamespace = "urn:ietf:params:xml:ns:xmpp-sasl"

// Authenticator is one SASL mechanism's negotiation state machine.
type Authenticator interface {
	Mechanism() string
	// ProcessElement consumes one <auth/>/<response/> element. A non-nil,
	// non-SASLError error is a transient/internal failure; a *SASLError is
	// a protocol-level SASL failure to report to the peer.
	ProcessElement(elem xml.XElement) error
	Authenticated() bool
	Username() string
	Reset()
}

// SASLError is a recoverable SASL failure (e.g. bad credentials); it
// carries the <failure/> child element to report, mirroring the teacher's
// auth.SASLError.
type SASLError struct {
	Condition string
}

func (e *SASLError) Error() string { return "auth: sasl failure: " + e.Condition }

// Element builds the <condition/> child the `failure` element must wrap.
func (e *SASLError) Element() xml.XElement {
	return xml.NewElementName(e.Condition)
}

// ErrSASLTemporaryAuthFailure mirrors the teacher's sentinel of the same
// name, used when ProcessElement fails for a non-protocol reason.
var ErrSASLTemporaryAuthFailure = &SASLError{Condition: "temporary-auth-failure"}

// CredentialChecker verifies a username/password pair. authdir.Directory
// satisfies this without auth needing to import it directly, avoiding a
// dependency cycle between the two packages.
type CredentialChecker interface {
	Verify(username, password string) bool
}

// Plain implements SASL PLAIN (RFC 4616): the one mechanism spec.md §6
// requires "at minimum".
type Plain struct {
	checker       CredentialChecker
	authenticated bool
	username      string
}

// NewPlain builds a PLAIN authenticator backed by checker.
func NewPlain(checker CredentialChecker) *Plain {
	return &Plain{checker: checker}
}

func (p *Plain) Mechanism() string { return "PLAIN" }

func (p *Plain) Authenticated() bool { return p.authenticated }
func (p *Plain) Username() string    { return p.username }

func (p *Plain) Reset() {
	p.authenticated = false
	p.username = ""
}

// ProcessElement decodes the base64 "authzid\0authcid\0passwd" payload
// carried in the initial <auth/> element and checks it against the
// configured credential store.
func (p *Plain) ProcessElement(elem xml.XElement) error {
	raw, err := base64.StdEncoding.DecodeString(elem.Text())
	if err != nil {
		return &SASLError{Condition: "incorrect-encoding"}
	}
	parts := strings.SplitN(string(raw), "\x00", 3)
	if len(parts) != 3 {
		return &SASLError{Condition: "malformed-request"}
	}
	username, password := parts[1], parts[2]
	if username == "" {
		return &SASLError{Condition: "malformed-request"}
	}
	if !p.checker.Verify(username, password) {
		return &SASLError{Condition: "not-authorized"}
	}
	p.username = username
	p.authenticated = true
	return nil
}
