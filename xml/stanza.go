/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import "strconv"

// The exactly-one-of-four values an iq's type attribute may hold
// (spec.md §3).
const (
	GetType    = "get"
	SetType    = "set"
	ResultType = "result"
	ErrorType  = "error"
)

// Stanza is a top-level, routable XMPP element: message, presence, or iq.
// spec.md §3 requires from/to JIDs (to is mandatory for routing, defaulting
// to "this server" when absent on the wire) alongside the opaque body.
type Stanza interface {
	XElement
	ToJID() *JID
	FromJID() *JID
}

func addressedElement(elem XElement, from, to *JID) *Element {
	cp := NewElementFromElement(elem)
	if from != nil {
		cp.SetAttribute("from", from.String())
	}
	if to != nil {
		cp.SetAttribute("to", to.String())
	}
	return cp
}

// IQ is the info/query stanza. spec.md §3: "for iq, a type ∈ {get, set,
// result, error} and exactly one child element whose (namespace, localname)
// identifies its semantic".
type IQ struct {
	*Element
	to, from *JID
}

// NewIQType builds a standalone result/error/get/set IQ (teacher idiom:
// xml.NewIQType(id, xml.ResultType)).
func NewIQType(id, iqType string) *IQ {
	e := NewElementName("iq")
	e.SetAttribute("id", id)
	e.SetAttribute("type", iqType)
	return &IQ{Element: e}
}

// NewIQFromElement validates elem as an iq (type one of the four values;
// exactly one child for get and set) and attaches resolved from/to JIDs.
func NewIQFromElement(elem XElement, from, to *JID) (*IQ, error) {
	if elem.Name() != "iq" {
		return nil, ErrBadRequest
	}
	switch elem.Type() {
	case GetType, SetType, ResultType, ErrorType:
	default:
		return nil, ErrBadRequest
	}
	if elem.Type() == GetType || elem.Type() == SetType {
		if len(elem.Elements().All()) != 1 {
			return nil, ErrBadRequest
		}
	}
	cp := addressedElement(elem, from, to)
	return &IQ{Element: cp, to: to, from: from}, nil
}

func (iq *IQ) ToJID() *JID   { return iq.to }
func (iq *IQ) FromJID() *JID { return iq.from }

func (iq *IQ) IsGet() bool    { return iq.Type() == GetType }
func (iq *IQ) IsSet() bool    { return iq.Type() == SetType }
func (iq *IQ) IsResult() bool { return iq.Type() == ResultType }
func (iq *IQ) IsError() bool  { return iq.Type() == ErrorType }

// Child returns the iq's single semantic-bearing child, if any (the
// (namespace, localname) pair spec.md §4.7 dispatches on).
func (iq *IQ) Child() XElement {
	all := iq.Elements().All()
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// ResultIQ builds the empty <iq type='result'/> acking a request.
func (iq *IQ) ResultIQ() *IQ {
	r := NewIQType(iq.ID(), ResultType)
	return r
}

func (iq *IQ) errorIQ(se *StanzaError) *IQ {
	e := NewErrorElementFromElement(iq, se, nil)
	return &IQ{Element: e, to: iq.from, from: iq.to}
}

func (iq *IQ) BadRequestError() *IQ         { return iq.errorIQ(ErrBadRequest) }
func (iq *IQ) NotAllowedError() *IQ         { return iq.errorIQ(ErrNotAllowed) }
func (iq *IQ) ConflictError() *IQ           { return iq.errorIQ(ErrConflict) }
func (iq *IQ) ServiceUnavailableError() *IQ { return iq.errorIQ(ErrServiceUnavailable) }
func (iq *IQ) FeatureNotImplementedError() *IQ {
	return iq.errorIQ(ErrFeatureNotImplemented)
}

// Presence is the presence stanza (spec.md §3).
type Presence struct {
	*Element
	to, from *JID
}

const (
	availableType   = ""
	unavailableType = "unavailable"
)

// UnavailableType marks an outgoing unavailable presence, mirrored from the
// teacher's xml.UnavailableType constant.
const UnavailableType = unavailableType

// NewPresence builds a presence stanza with an explicit type, used for
// synthesizing the final "gone offline" broadcast on disconnect.
func NewPresence(from, to *JID, presenceType string) *Presence {
	e := NewElementName("presence")
	if presenceType != "" {
		e.SetAttribute("type", presenceType)
	}
	e.SetAttribute("from", from.String())
	e.SetAttribute("to", to.String())
	return &Presence{Element: e, from: from, to: to}
}

// NewPresenceFromElement validates elem as a presence and attaches resolved
// from/to JIDs.
func NewPresenceFromElement(elem XElement, from, to *JID) (*Presence, error) {
	if elem.Name() != "presence" {
		return nil, ErrBadRequest
	}
	cp := addressedElement(elem, from, to)
	return &Presence{Element: cp, to: to, from: from}, nil
}

func (p *Presence) ToJID() *JID   { return p.to }
func (p *Presence) FromJID() *JID { return p.from }

func (p *Presence) IsAvailable() bool   { return p.Type() == availableType }
func (p *Presence) IsUnavailable() bool { return p.Type() == unavailableType }

// Priority parses the optional <priority/> child, defaulting to 0.
func (p *Presence) Priority() int8 {
	prio := p.Elements().Child("priority")
	if prio == nil || prio.Text() == "" {
		return 0
	}
	v, err := strconv.ParseInt(prio.Text(), 10, 8)
	if err != nil {
		return 0
	}
	return int8(v)
}

// Status returns the optional <status/> child text.
func (p *Presence) Status() string {
	if st := p.Elements().Child("status"); st != nil {
		return st.Text()
	}
	return ""
}

// Message is the message stanza (spec.md §3).
type Message struct {
	*Element
	to, from *JID
}

// NewMessageFromElement validates elem as a message and attaches resolved
// from/to JIDs.
func NewMessageFromElement(elem XElement, from, to *JID) (*Message, error) {
	if elem.Name() != "message" {
		return nil, ErrBadRequest
	}
	cp := addressedElement(elem, from, to)
	return &Message{Element: cp, to: to, from: from}, nil
}

func (m *Message) ToJID() *JID   { return m.to }
func (m *Message) FromJID() *JID { return m.from }

func (m *Message) IsChat() bool      { return m.Type() == "chat" }
func (m *Message) IsGroupChat() bool { return m.Type() == "groupchat" }
func (m *Message) IsHeadline() bool  { return m.Type() == "headline" }
func (m *Message) IsNormal() bool    { return m.Type() == "" || m.Type() == "normal" }

// IsMessageWithBody reports whether the message carries a <body/> child.
func (m *Message) IsMessageWithBody() bool {
	return m.Elements().Child("body") != nil
}

func (m *Message) ServiceUnavailableError() *Message {
	e := NewErrorElementFromElement(m, ErrServiceUnavailable, nil)
	return &Message{Element: e, to: m.from, from: m.to}
}
