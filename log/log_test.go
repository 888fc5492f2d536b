/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrite_RespectsLevel(t *testing.T) {
	origOut, origLevel := out, level
	defer func() { out, level = origOut, origLevel }()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(WarnLevel)

	Infof("should not appear")
	require.Empty(t, buf.String())

	Warnf("disk at %d%%", 90)
	require.True(t, strings.Contains(buf.String(), "disk at 90%"))
	require.True(t, strings.Contains(buf.String(), "WRN"))
}

func TestFatalf_CallsExitFn(t *testing.T) {
	origOut, origLevel, origExit := out, level, exitFn
	defer func() { out, level, exitFn = origOut, origLevel, origExit }()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(DebugLevel)

	var code int
	exitFn = func(c int) { code = c }

	Fatalf("boom")
	require.Equal(t, 1, code)
	require.True(t, strings.Contains(buf.String(), "boom"))
}

func TestLevel_String(t *testing.T) {
	require.Equal(t, "DBG", DebugLevel.String())
	require.Equal(t, "FTL", FatalLevel.String())
}
