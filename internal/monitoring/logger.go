// Package monitoring carries the service's diagnostic logger and its
// Prometheus metrics.
package monitoring

import "log"

// Logf is where every package in the daemon sends diagnostic output. It
// defaults to log.Printf; tests and embedding programs swap it out through
// SetLogger rather than assigning directly.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes output entirely.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
