/*
Package reconciler releases reservations whose owner is gone.

An allocation is dead when it was marked deleted, when its request no
longer exists or when its request was deleted. Releasing an allocation
keeps its history: reservations that already started end at the release
time, the ones that did not start are deleted.

	┌──────────────┐   dead?   ┌──────────────┐
	│  Allocation  │──────────▶│   Release    │
	└──────────────┘           └──────┬───────┘
	                                  │ Truncate(now, now)
	                                  ▼
	                     delete future / shorten running

Reservations pointing to an unknown allocation are orphans and are
truncated the same way.

The reconciler never writes. Plan and Release return a storage.ChangeSet
that the scheduler applies through its applier, so a release is replicated
like any other change when the raft manager is in use. Truncate is shared
with the scheduler, which uses it to cut the previous reservations of an
allocation at the start of a new one.
*/
package reconciler
