/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package log provides the leveled logger used throughout xmppd. It mirrors
// the tiny logging facility the teacher codebase rolls on its own rather than
// pulling in a structured-logging library: every other package calls the
// package-level Debugf/Infof/Warnf/Error/Fatalf functions without needing to
// know where the bytes end up.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level controls which messages reach the underlying writer.
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DBG"
	case InfoLevel:
		return "INF"
	case WarnLevel:
		return "WRN"
	case ErrorLevel:
		return "ERR"
	case FatalLevel:
		return "FTL"
	default:
		return "???"
	}
}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	level  Level     = InfoLevel
	exitFn           = os.Exit
)

// SetOutput redirects log output (os.Stderr by default).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetLevel sets the minimum level that gets written.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

func write(l Level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(out, "%s %s %s\n", ts, l, msg)
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) { write(DebugLevel, format, args...) }

// Infof logs at info level.
func Infof(format string, args ...interface{}) { write(InfoLevel, format, args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...interface{}) { write(WarnLevel, format, args...) }

// Error logs an error value at error level.
func Error(err error) {
	if err == nil {
		return
	}
	write(ErrorLevel, "%v", err)
}

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) { write(ErrorLevel, format, args...) }

// Fatalf logs at fatal level and terminates the process. Reserved for
// server-wide fatal conditions (bind failure, TLS key load failure,
// allocation failure) per the core's failure semantics.
func Fatalf(format string, args ...interface{}) {
	write(FatalLevel, format, args...)
	exitFn(1)
}
