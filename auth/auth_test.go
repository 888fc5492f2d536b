/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package auth

import (
	"encoding/base64"
	"testing"

	"github.com/ortuman/xmppd/xml"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	username, password string
}

func (c *fakeChecker) Verify(username, password string) bool {
	return username == c.username && password == c.password
}

func plainAuth(authzid, authcid, passwd string) xml.XElement {
	payload := authzid + "\x00" + authcid + "\x00" + passwd
	e := xml.NewElementName("auth")
	e.SetText(base64.StdEncoding.EncodeToString([]byte(payload)))
	return e
}

func TestPlain_Mechanism(t *testing.T) {
	p := NewPlain(&fakeChecker{})
	require.Equal(t, "PLAIN", p.Mechanism())
}

func TestPlain_SuccessfulAuthentication(t *testing.T) {
	p := NewPlain(&fakeChecker{username: "ortuman", password: "secret"})
	err := p.ProcessElement(plainAuth("", "ortuman", "secret"))
	require.NoError(t, err)
	require.True(t, p.Authenticated())
	require.Equal(t, "ortuman", p.Username())
}

func TestPlain_WrongPassword(t *testing.T) {
	p := NewPlain(&fakeChecker{username: "ortuman", password: "secret"})
	err := p.ProcessElement(plainAuth("", "ortuman", "wrong"))
	saslErr, ok := err.(*SASLError)
	require.True(t, ok)
	require.Equal(t, "not-authorized", saslErr.Condition)
	require.False(t, p.Authenticated())
}

func TestPlain_MalformedPayload(t *testing.T) {
	p := NewPlain(&fakeChecker{})
	e := xml.NewElementName("auth")
	e.SetText(base64.StdEncoding.EncodeToString([]byte("not-enough-nulls")))
	err := p.ProcessElement(e)
	saslErr, ok := err.(*SASLError)
	require.True(t, ok)
	require.Equal(t, "malformed-request", saslErr.Condition)
}

func TestPlain_InvalidBase64(t *testing.T) {
	p := NewPlain(&fakeChecker{})
	e := xml.NewElementName("auth")
	e.SetText("not base64!!")
	err := p.ProcessElement(e)
	saslErr, ok := err.(*SASLError)
	require.True(t, ok)
	require.Equal(t, "incorrect-encoding", saslErr.Condition)
}

func TestPlain_Reset(t *testing.T) {
	p := NewPlain(&fakeChecker{username: "ortuman", password: "secret"})
	require.NoError(t, p.ProcessElement(plainAuth("", "ortuman", "secret")))
	p.Reset()
	require.False(t, p.Authenticated())
	require.Equal(t, "", p.Username())
}
