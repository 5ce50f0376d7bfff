package recovery

import (
	"runtime/debug"

	"github.com/vanpelt/livesync/internal/logger"
)

// SafeGo runs a function in a goroutine with automatic panic recovery so a
// single connection cannot crash the server
func SafeGo(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// SafeGoWithCleanup runs a function in a goroutine with panic recovery and a
// cleanup that always runs
func SafeGoWithCleanup(name string, fn func(), cleanup func()) {
	go func() {
		defer func() {
			if cleanup != nil {
				cleanup()
			}
		}()
		defer Recover(name)
		fn()
	}()
}

// Recover logs a recovered panic; use as `defer recovery.Recover("name")`
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Logger.Error().
			Str("goroutine", name).
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("🚨 panic recovered")
	}
}
