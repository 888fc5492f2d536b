/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package streamerror

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_String(t *testing.T) {
	require.Equal(t, "stream error: invalid-namespace", ErrInvalidNamespace.Error())

	withText := &Error{Condition: "bad-format", Text: "unexpected token"}
	require.Equal(t, "stream error: bad-format (unexpected token)", withText.Error())
}

func TestError_Namespace(t *testing.T) {
	require.Equal(t, "urn:ietf:params:xml:ns:xmpp-streams", ErrInvalidNamespace.Namespace())
}
