/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseJID(t *testing.T) {
	j, err := ParseJID("ortuman@jackal.im/office", true)
	require.NoError(t, err)
	require.Equal(t, "ortuman", j.Node())
	require.Equal(t, "jackal.im", j.Domain())
	require.Equal(t, "office", j.Resource())
	require.Equal(t, "ortuman@jackal.im/office", j.String())
}

func TestParseJID_BareAndServer(t *testing.T) {
	bare, err := ParseJID("ortuman@jackal.im", true)
	require.NoError(t, err)
	require.True(t, bare.IsBare())
	require.False(t, bare.IsFull())

	server, err := ParseJID("jackal.im", true)
	require.NoError(t, err)
	require.True(t, server.IsServer())
}

func TestParseJID_Malformed(t *testing.T) {
	_, err := ParseJID("@jackal.im", true)
	require.Equal(t, ErrMalformedJID, err)

	_, err = ParseJID("", true)
	require.Equal(t, ErrMalformedJID, err)
}

func TestJID_ToBareJID(t *testing.T) {
	full, err := ParseJID("ortuman@jackal.im/office", true)
	require.NoError(t, err)
	bare := full.ToBareJID()
	require.Equal(t, "ortuman@jackal.im", bare.String())
	require.True(t, bare.IsBare())
}

func TestJID_Equal(t *testing.T) {
	a, _ := ParseJID("ortuman@jackal.im/office", true)
	b, _ := ParseJID("ortuman@jackal.im/office", true)
	c, _ := ParseJID("ortuman@jackal.im/home", true)
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestMatchesRoute(t *testing.T) {
	target, _ := ParseJID("ortuman@jackal.im/office", true)

	exact, _ := NewJID("ortuman", "jackal.im", "office", false)
	require.True(t, MatchesRoute(target, exact))

	wrongResource, _ := NewJID("ortuman", "jackal.im", "home", false)
	require.False(t, MatchesRoute(target, wrongResource))

	wildcardResource, _ := NewJID("ortuman", "jackal.im", "*", false)
	require.True(t, MatchesRoute(target, wildcardResource))

	wildcardNode, _ := NewJID("*", "jackal.im", "", false)
	require.True(t, MatchesRoute(target, wildcardNode))

	bareTarget, _ := ParseJID("ortuman@jackal.im", true)
	require.True(t, MatchesRoute(bareTarget, exact))

	otherDomain, _ := NewJID("ortuman", "other.im", "*", false)
	require.False(t, MatchesRoute(target, otherDomain))
}
