// Package monitoring carries the process-wide diagnostic logger used by the
// query engine, the worker host, and the HTTP layer.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf;
// tests and embedders can redirect or mute it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
