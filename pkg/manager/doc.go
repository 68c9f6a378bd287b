/*
Package manager replicates reservation state across burrow nodes with
Raft (hashicorp/raft).

Every write in burrow is a storage.ChangeSet produced under the scheduler
lock. When replication is enabled the scheduler is given the Manager as
its storage.Applier: the change set is encoded into an "apply_changes"
command, committed to the raft log and applied by ReservationFSM on every
node, the local one included, before ApplyChanges returns.

	scheduler ──ChangeSet──▶ Manager.ApplyChanges
	                              │ raft.Apply
	                              ▼
	                    ReservationFSM.Apply (each node)
	                              │
	                              ▼
	                      BoltStore.ApplyChanges

Reads never go through raft. A follower serves reads from its own store,
which lags the leader by at most the commit latency.

# Storage

The raft log and stable store use raft-boltdb files (raft-log.db and
raft-stable.db) in the data directory, snapshots are kept by a file
snapshot store. A snapshot is a JSON copy of every resource, request,
allocation and reservation; restoring one replaces the store contents.

# Timeouts

Heartbeat and election timeouts are lowered to 500ms for LAN clusters.
A change set that does not reach a quorum within the apply timeout
(default 5s) fails and the allocation attempt that produced it is
reported as an error, not as an allocation failure.

# Membership

Bootstrap creates a single-node cluster. Further nodes call Start and are
added by the leader with AddVoter; RemoveServer takes one out.
*/
package manager
