// Package monitoring holds the process-wide diagnostic logger used by the
// engagement pipeline. Detector failures and skipped predictions are logged
// here rather than returned, since a degraded frame still produces output.
package monitoring

import "log"

// Logf emits one diagnostic line. It defaults to log.Printf; SetLogger can
// redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil f mutes logging entirely.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
