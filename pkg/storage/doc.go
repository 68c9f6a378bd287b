/*
Package storage persists burrow's state in BoltDB (bbolt).

The Store interface splits into a Reader, used inside one read
transaction through View, and an Applier that commits a ChangeSet
atomically. Allocation attempts read through View and write one change
set, so an attempt never sees its own partial writes and never leaves
partial writes behind.

# Buckets

	resources          resource id      -> JSON Resource
	requests           request id       -> JSON ReservationRequest
	allocations        allocation id    -> JSON Allocation
	reservations       reservation id   -> JSON Reservation
	reservation_index  target \x00 start \x00 id -> nil
	meta               "revision"       -> uint64

The reservation index keeps reservations sorted by target and slot start,
so ListOverlapping scans only the target's range that can overlap. It is
derived data: Reindex (or burrow-migrate reindex) rebuilds it from the
reservations bucket.

# Revision

Every applied change set increments a revision stored in the meta bucket
and mirrored in memory. Caches keyed by revision, like the availability
cache, are invalidated by any write.

# Errors

Lookups of missing entities return an error wrapping ErrNotFound:

	_, err := store.GetRequest(id)
	if errors.Is(err, storage.ErrNotFound) {
		...
	}
*/
package storage
