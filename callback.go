package livegrid

import (
	"log/slog"
	"slices"

	"github.com/m1kah/livegrid/internal/store"
)

// callbackSubscriber fans change batches out to user callbacks.
type callbackSubscriber struct {
	callbacks []func([]string)
	logger    *slog.Logger
}

func (c *callbackSubscriber) OnChange(batch store.ChangeBatch) {
	for _, cb := range c.callbacks {
		invokeCallbackSafe(cb, slices.Clone(batch), c.logger)
	}
}

// invokeCallbackSafe calls a change callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func([]string), names []string, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("change callback panicked",
				"panic", r,
				"changed", len(names),
			)
		}
	}()
	cb(names)
}
