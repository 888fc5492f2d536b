/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package muc

import (
	"testing"

	"github.com/ortuman/xmppd/router"
	"github.com/ortuman/xmppd/xml"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	id   string
	jid  *xml.JID
	sent []xml.XElement
}

func (f *fakeStream) ID() string              { return f.id }
func (f *fakeStream) JID() *xml.JID           { return f.jid }
func (f *fakeStream) Username() string        { return f.jid.Node() }
func (f *fakeStream) Domain() string          { return f.jid.Domain() }
func (f *fakeStream) Resource() string        { return f.jid.Resource() }
func (f *fakeStream) IsAuthenticated() bool   { return true }
func (f *fakeStream) IsSecured() bool         { return true }
func (f *fakeStream) Presence() *xml.Presence { return nil }
func (f *fakeStream) SendElement(e xml.XElement) { f.sent = append(f.sent, e) }
func (f *fakeStream) Disconnect(err error)       {}

func newFakeStream(t *testing.T, jidStr string) *fakeStream {
	j, err := xml.ParseJID(jidStr, true)
	require.NoError(t, err)
	return &fakeStream{id: jidStr, jid: j}
}

func setupRouter(t *testing.T) (*router.Router, *Component, *fakeStream, *fakeStream) {
	r := router.Initialize("jackal.im")
	c := New("conference.jackal.im")
	require.NoError(t, c.Start(r))

	ortuman := newFakeStream(t, "ortuman@jackal.im/office")
	juliet := newFakeStream(t, "juliet@jackal.im/balcony")
	require.NoError(t, r.RegisterStream(ortuman))
	require.NoError(t, r.AuthenticateStream(ortuman))
	require.NoError(t, r.RegisterStream(juliet))
	require.NoError(t, r.AuthenticateStream(juliet))
	return r, c, ortuman, juliet
}

func joinPresence(t *testing.T, from, roomOccupant string) *xml.Presence {
	fromJID, err := xml.ParseJID(from, true)
	require.NoError(t, err)
	toJID, err := xml.ParseJID(roomOccupant, true)
	require.NoError(t, err)
	p := xml.NewPresence(fromJID, toJID, "")
	p.AppendElement(xml.NewElementNamespace("x", NS))
	return p
}

func leavePresence(t *testing.T, from, roomOccupant string) *xml.Presence {
	fromJID, err := xml.ParseJID(from, true)
	require.NoError(t, err)
	toJID, err := xml.ParseJID(roomOccupant, true)
	require.NoError(t, err)
	return xml.NewPresence(fromJID, toJID, xml.UnavailableType)
}

func TestMUC_JoinBroadcastsPresenceToOccupants(t *testing.T) {
	r, _, ortuman, juliet := setupRouter(t)
	defer router.Shutdown()

	r.Dispatch(joinPresence(t, "ortuman@jackal.im/office", "lobby@conference.jackal.im/ortuman"))
	require.Len(t, ortuman.sent, 1)

	r.Dispatch(joinPresence(t, "juliet@jackal.im/balcony", "lobby@conference.jackal.im/juliet"))
	require.Len(t, ortuman.sent, 2)
	require.Len(t, juliet.sent, 1)
}

func TestMUC_GroupChatMessageFansOutToOccupants(t *testing.T) {
	r, _, ortuman, juliet := setupRouter(t)
	defer router.Shutdown()

	r.Dispatch(joinPresence(t, "ortuman@jackal.im/office", "lobby@conference.jackal.im/ortuman"))
	r.Dispatch(joinPresence(t, "juliet@jackal.im/balcony", "lobby@conference.jackal.im/juliet"))

	e := xml.NewElementName("message")
	e.SetAttribute("type", "groupchat")
	e.SetAttribute("from", "ortuman@jackal.im/office")
	e.SetAttribute("to", "lobby@conference.jackal.im")
	body := xml.NewElementName("body")
	body.SetText("hi everyone")
	e.AppendElement(body)
	from, _ := xml.ParseJID("ortuman@jackal.im/office", true)
	to, _ := xml.ParseJID("lobby@conference.jackal.im", true)
	m, err := xml.NewMessageFromElement(e, from, to)
	require.NoError(t, err)

	before := len(ortuman.sent)
	r.Dispatch(m)
	require.Greater(t, len(ortuman.sent), before)
	require.NotEmpty(t, juliet.sent)
}

func TestMUC_LeaveRemovesOccupant(t *testing.T) {
	r, c, ortuman, _ := setupRouter(t)
	defer router.Shutdown()

	r.Dispatch(joinPresence(t, "ortuman@jackal.im/office", "lobby@conference.jackal.im/ortuman"))
	roomJID, _ := xml.ParseJID("lobby@conference.jackal.im", true)
	room := c.roomFor(roomJID, false)
	require.NotNil(t, room)
	require.Len(t, room.occupants, 1)

	r.Dispatch(leavePresence(t, "ortuman@jackal.im/office", "lobby@conference.jackal.im/ortuman"))
	require.Len(t, room.occupants, 0)
}

func TestMUC_IQReceivesServiceUnavailable(t *testing.T) {
	r, _, ortuman, _ := setupRouter(t)
	defer router.Shutdown()

	e := xml.NewElementName("iq")
	e.SetAttribute("id", "1")
	e.SetAttribute("type", xml.GetType)
	e.SetAttribute("to", "lobby@conference.jackal.im")
	e.AppendElement(xml.NewElementNamespace("query", "http://jabber.org/protocol/disco#info"))
	from, _ := xml.ParseJID("ortuman@jackal.im/office", true)
	to, _ := xml.ParseJID("lobby@conference.jackal.im", true)
	iq, err := xml.NewIQFromElement(e, from, to)
	require.NoError(t, err)

	r.Dispatch(iq)
	require.Len(t, ortuman.sent, 1)
	errIQ, ok := ortuman.sent[0].(*xml.IQ)
	require.True(t, ok)
	require.Equal(t, xml.ErrorType, errIQ.Type())
}
