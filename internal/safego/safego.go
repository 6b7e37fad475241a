// Package safego runs background work (usage writes, audit shipping, scheduled
// jobs) in goroutines whose panics are logged instead of crashing the server.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a new goroutine and recovers any panic
func Go(fn func()) {
	GoNamed("background", fn)
}

// GoNamed is Go with a task name attached to the panic log record
func GoNamed(task string, fn func()) {
	go func() {
		defer recoverAndLog(task)
		fn()
	}()
}

func recoverAndLog(task string) {
	if r := recover(); r != nil {
		slog.Error("recovered panic in background goroutine",
			"task", task,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}
