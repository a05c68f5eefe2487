package exception

import (
	"fmt"
	"runtime/debug"

	"github.com/mezonai/balances-maintenance/logx"
	"github.com/mezonai/balances-maintenance/monitoring"
)

// SafeGo runs fn in a goroutine and logs instead of crashing on panic.
func SafeGo(log *logx.Logger, metrics *monitoring.Metrics, name string, fn func()) {
	go func() {
		defer Recover(log, metrics, name)
		fn()
	}()
}

// Recover must be deferred directly. It logs the panic with its stack.
func Recover(log *logx.Logger, metrics *monitoring.Metrics, name string) {
	if r := recover(); r != nil {
		metrics.IncreasePanicCount()
		log.Error("PANIC", "Panic in: ", name, " ", fmt.Sprint(r), "\n", string(debug.Stack()))
	}
}

// Report logs a recovered value and its stack without swallowing it; the
// caller re-panics.
func Report(log *logx.Logger, name string, r interface{}) {
	log.Error("PANIC", "Panic in: ", name, " ", fmt.Sprint(r), "\n", string(debug.Stack()))
}
