/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package authdir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectory_RegisterAndVerify(t *testing.T) {
	d := New()
	require.NoError(t, d.Register("ortuman", "secret"))
	require.True(t, d.Verify("ortuman", "secret"))
	require.False(t, d.Verify("ortuman", "wrong"))
}

func TestDirectory_ExistsReflectsRegistration(t *testing.T) {
	d := New()
	require.False(t, d.Exists("ortuman"))
	require.NoError(t, d.Register("ortuman", "secret"))
	require.True(t, d.Exists("ortuman"))
}

func TestDirectory_UnknownUserDoesNotVerify(t *testing.T) {
	d := New()
	require.False(t, d.Verify("nobody", "whatever"))
}

func TestDirectory_RegisterOverwritesPreviousPassword(t *testing.T) {
	d := New()
	require.NoError(t, d.Register("ortuman", "old"))
	require.NoError(t, d.Register("ortuman", "new"))
	require.False(t, d.Verify("ortuman", "old"))
	require.True(t, d.Verify("ortuman", "new"))
}
