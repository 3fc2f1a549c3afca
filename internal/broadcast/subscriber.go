package broadcast

import "github.com/m1kah/livegrid/internal/store"

// Subscriber receives change notifications.
//
// OnChange is called on the broadcaster's dispatch goroutine, one call per
// published batch. Implementations re-resolve the names they care about from
// the store and should hand any slow work to their own execution context
// (see [Executor]) instead of blocking the dispatcher.
type Subscriber interface {
	OnChange(batch store.ChangeBatch)
}

// Attacher is implemented by subscribers whose owner can go away logically
// before the subscriber object itself is collected. A registration whose
// subscriber reports false is pruned on the next publish.
type Attacher interface {
	Attached() bool
}

// Executor marshals a task onto a subscriber-owned execution context and
// returns without waiting for it to run. It returns an error when the
// context no longer accepts work.
type Executor func(task func()) error
