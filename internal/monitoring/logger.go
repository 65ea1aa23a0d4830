// Package monitoring carries the daemon's diagnostic logging hook.
package monitoring

import "log"

// Logf emits one diagnostic line. The default goes to the standard logger;
// tests silence it and deployments can redirect it with SetLogger.
var Logf = log.Printf

// SetLogger swaps the diagnostic sink. A nil sink discards everything.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}
