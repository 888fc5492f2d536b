/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package router

import (
	"testing"

	"github.com/ortuman/xmppd/xml"
	"github.com/stretchr/testify/require"
)

func newPingIQ(t *testing.T) *xml.IQ {
	e := xml.NewElementName("iq")
	e.SetAttribute("id", "1")
	e.SetAttribute("type", xml.GetType)
	e.AppendElement(xml.NewElementNamespace("ping", "urn:xmpp:ping"))
	iq, err := xml.NewIQFromElement(e, nil, nil)
	require.NoError(t, err)
	return iq
}

func TestIQTable_RegisterLookupDeregister(t *testing.T) {
	tbl := NewIQTable()
	var got *xml.IQ
	tbl.Register("urn:xmpp:ping", func(iq *xml.IQ, data interface{}) bool {
		got = iq
		return true
	}, nil)

	cb, _, breaker, ok := tbl.Lookup("urn:xmpp:ping")
	require.True(t, ok)

	iq := newPingIQ(t)
	require.True(t, InvokeIQ(breaker, cb, iq, nil))
	require.Equal(t, iq, got)

	tbl.Deregister("urn:xmpp:ping")
	_, _, _, ok = tbl.Lookup("urn:xmpp:ping")
	require.False(t, ok)
}

func TestIQTable_DuplicateRegistrationIgnored(t *testing.T) {
	tbl := NewIQTable()
	calls := 0
	tbl.Register("urn:xmpp:ping", func(iq *xml.IQ, data interface{}) bool { calls++; return true }, nil)
	tbl.Register("urn:xmpp:ping", func(iq *xml.IQ, data interface{}) bool { calls += 100; return true }, nil)

	cb, _, breaker, _ := tbl.Lookup("urn:xmpp:ping")
	InvokeIQ(breaker, cb, newPingIQ(t), nil)
	require.Equal(t, 1, calls)
}

func TestIQTable_BeginShutdownRejectsRegistration(t *testing.T) {
	tbl := NewIQTable()
	tbl.BeginShutdown()
	tbl.Register("urn:xmpp:ping", func(iq *xml.IQ, data interface{}) bool { return true }, nil)

	_, _, _, ok := tbl.Lookup("urn:xmpp:ping")
	require.False(t, ok)
}

func TestIQTable_FailedDeliveryReturnsFalse(t *testing.T) {
	tbl := NewIQTable()
	tbl.Register("urn:xmpp:ping", func(iq *xml.IQ, data interface{}) bool { return false }, nil)

	cb, _, breaker, ok := tbl.Lookup("urn:xmpp:ping")
	require.True(t, ok)
	require.False(t, InvokeIQ(breaker, cb, newPingIQ(t), nil))
}
