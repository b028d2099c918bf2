// Package monitoring carries the shared operational logger used by the
// storage, API, and monitor packages.
package monitoring

import "log"

// Logf is the package-level operational logger. It defaults to log.Printf
// and may be swapped with SetLogger so binaries can route it into their
// own log sink or mute it in tests.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
