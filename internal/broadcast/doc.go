// Package broadcast fans change batches out to registered subscribers.
//
// This package is internal to livegrid. A [Broadcaster] keeps a registry of
// subscriber handles and, for every published batch, queues one notification
// task per live subscriber on its own dispatch goroutine. Publishing never
// runs subscriber code and never waits for it.
//
// Registrations are weak: the registry holds a [weak.Pointer] to each
// subscriber, so a view that is dropped without unsubscribing can still be
// garbage collected. Such entries, and entries whose owner reports
// Attached() == false, are pruned on the next publish or sweep.
//
// Failure isolation: a subscriber that panics in OnChange is logged and
// skipped; other subscribers and later batches are unaffected.
package broadcast
