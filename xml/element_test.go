/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestElement_ToXML(t *testing.T) {
	e := NewElementName("message")
	e.SetAttribute("to", "ortuman@jackal.im")
	e.SetAttribute("type", "chat")

	body := NewElementName("body")
	body.SetText("hi")
	e.AppendElement(body)

	require.Equal(t, `<message to="ortuman@jackal.im" type="chat"><body>hi</body></message>`, e.String())
}

func TestElement_SelfClosing(t *testing.T) {
	e := NewElementNamespace("starttls", "urn:ietf:params:xml:ns:xmpp-tls")
	require.Equal(t, `<starttls xmlns="urn:ietf:params:xml:ns:xmpp-tls"/>`, e.String())
}

func TestElement_Escape(t *testing.T) {
	e := NewElementName("body")
	e.SetText(`<hi> & "bye"`)
	require.Equal(t, `<body>&lt;hi&gt; &amp; &quot;bye&quot;</body>`, e.String())
}

func TestAttributeSet_Get(t *testing.T) {
	e := NewElementName("iq")
	e.SetAttribute("id", "1")
	require.Equal(t, "1", e.Attributes().Get("id"))
	require.Equal(t, "", e.Attributes().Get("missing"))
}

func TestElementSet_ChildNamespace(t *testing.T) {
	iq := NewElementName("iq")
	bind := NewElementNamespace("bind", "urn:ietf:params:xml:ns:xmpp-bind")
	iq.AppendElement(bind)

	require.Equal(t, bind, iq.Elements().ChildNamespace("bind", "urn:ietf:params:xml:ns:xmpp-bind"))
	require.Nil(t, iq.Elements().ChildNamespace("bind", "wrong-ns"))
}
