// Package goroutine provides utilities for safely launching goroutines with panic recovery.
package goroutine

import (
	"fmt"
	"runtime/debug"

	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// Launcher starts fn in the background under the given name. Components that
// defer work take a Launcher so tests can substitute a synchronous one.
type Launcher func(name string, fn func())

// SafeGo launches a goroutine with panic recovery. If the goroutine panics,
// the panic is caught and logged with stack trace instead of crashing the process.
func SafeGo(log logger.Interface, name string, fn func()) {
	go func() {
		defer recoverAndLog(log, name)
		fn()
	}()
}

// NewLauncher returns a Launcher backed by SafeGo.
func NewLauncher(log logger.Interface) Launcher {
	return func(name string, fn func()) {
		SafeGo(log, name, fn)
	}
}

// Inline returns a Launcher that runs fn on the caller's goroutine, still
// recovering panics.
func Inline(log logger.Interface) Launcher {
	return func(name string, fn func()) {
		defer recoverAndLog(log, name)
		fn()
	}
}

func recoverAndLog(log logger.Interface, name string) {
	if r := recover(); r != nil {
		log.Errorw("goroutine panicked",
			"goroutine", name,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)
	}
}
