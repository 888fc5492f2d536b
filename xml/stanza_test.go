/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIQFromElement(t *testing.T) {
	from, _ := ParseJID("ortuman@jackal.im/office", true)
	to, _ := ParseJID("jackal.im", true)

	e := NewElementName("iq")
	e.SetAttribute("id", "1")
	e.SetAttribute("type", GetType)
	e.AppendElement(NewElementNamespace("ping", "urn:xmpp:ping"))

	iq, err := NewIQFromElement(e, from, to)
	require.NoError(t, err)
	require.True(t, iq.IsGet())
	require.Equal(t, from, iq.FromJID())
	require.Equal(t, to, iq.ToJID())
	require.Equal(t, "ping", iq.Child().Name())
}

func TestNewIQFromElement_RequiresSingleChildForGetSet(t *testing.T) {
	e := NewElementName("iq")
	e.SetAttribute("id", "1")
	e.SetAttribute("type", GetType)
	_, err := NewIQFromElement(e, nil, nil)
	require.Equal(t, ErrBadRequest, err)
}

func TestIQ_ErrorSwapsAddresses(t *testing.T) {
	from, _ := ParseJID("ortuman@jackal.im/office", true)
	to, _ := ParseJID("jackal.im", true)

	e := NewElementName("iq")
	e.SetAttribute("id", "1")
	e.SetAttribute("type", GetType)
	e.AppendElement(NewElementNamespace("ping", "urn:xmpp:ping"))

	iq, err := NewIQFromElement(e, from, to)
	require.NoError(t, err)

	errIQ := iq.ServiceUnavailableError()
	require.Equal(t, from, errIQ.ToJID())
	require.Equal(t, to, errIQ.FromJID())
	require.Equal(t, ErrorType, errIQ.Type())
}

func TestPresence_AvailableUnavailable(t *testing.T) {
	from, _ := ParseJID("ortuman@jackal.im/office", true)
	to, _ := ParseJID("ortuman@jackal.im", true)

	available := NewPresence(from, to, "")
	require.True(t, available.IsAvailable())
	require.False(t, available.IsUnavailable())

	unavailable := NewPresence(from, to, UnavailableType)
	require.True(t, unavailable.IsUnavailable())
}

func TestPresence_PriorityAndStatus(t *testing.T) {
	e := NewElementName("presence")
	prio := NewElementName("priority")
	prio.SetText("5")
	status := NewElementName("status")
	status.SetText("away")
	e.AppendElement(prio)
	e.AppendElement(status)

	p, err := NewPresenceFromElement(e, nil, nil)
	require.NoError(t, err)
	require.Equal(t, int8(5), p.Priority())
	require.Equal(t, "away", p.Status())
}

func TestMessage_TypeHelpers(t *testing.T) {
	e := NewElementName("message")
	e.SetAttribute("type", "groupchat")
	body := NewElementName("body")
	body.SetText("hi")
	e.AppendElement(body)

	m, err := NewMessageFromElement(e, nil, nil)
	require.NoError(t, err)
	require.True(t, m.IsGroupChat())
	require.True(t, m.IsMessageWithBody())
}
