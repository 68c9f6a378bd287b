/*
Package scheduler allocates reservation requests to concrete resources.

The scheduler turns the specification of a request into a tree of
reservations for the request's slot: a room on a device with enough free
licenses, aliases from alias providers, values minted by value providers,
whole resources. Every attempt either commits the complete tree or
nothing.

# Architecture

A pass runs every 5 seconds over a working interval (7 days ahead by
default). Each pass holds the scheduler lock for its whole duration:

	┌────────────────────────────────────────────────────────────┐
	│                     Scheduler pass                         │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	  1. reconciler.Plan     release allocations of deleted requests
	  2. preprocess          one child request per future slot of a set
	  3. pending requests    ACTIVE, COMPLETE, ending after now
	     sorted by priority, then creation time, then id
	  4. allocate            one attempt per request

One attempt reads from a single bbolt read transaction and produces one
storage.ChangeSet. The change set goes to the configured applier: the
store itself or the raft manager.

# Tasks

A Task allocates one specification. The kind of the specification picks
the allocation routine:

	resource            whole resource, exclusive; a terminal resource
	                    becomes an endpoint, a parent resource is
	                    allocated along
	alias               one alias provider of a matching resource; the
	                    alias value comes from a value provider when the
	                    provider uses one
	alias_set           one alias per entry, optionally sharing an
	                    endpoint id
	room                licenses on a room provider device, fullest
	                    device first, plus aliases when requested
	value               requested values are checked, otherwise the
	                    provider generates the next free one
	compartment         participants' endpoints, and a room when more
	                    than two endpoints meet
	multi_compartment   one child per compartment

Composite tasks run a child task per contained specification. A child
that fails aborts the parent unless the child specification is optional,
in which case the failure is kept as a warning in the report.

# Context and savepoints

Context carries what one attempt sees: the reference time, the store
reader, the id generator and the State of reservations allocated so far.
Conflicts are counted against persisted reservations plus the ones in
State, which keeps a btree per target ordered by slot start.

Every State mutation appends an undo entry to a journal. A Savepoint
marks the journal; Revert undoes everything after the mark, newest
first, and Destroy keeps it. Each task and each candidate tried by a
task runs under its own savepoint, so a failed branch leaves no trace:

	sp := ctx.State().Savepoint()
	reservation, err := child.Perform()
	if err != nil {
		sp.Revert()
		return nil, err
	}
	sp.Destroy()

# Reuse and reallocation

Before the task runs, State is seeded with available reservations:

  - REALLOCATABLE: the previous reservations of the request's own
    allocation. They do not count as conflicts, so a modified request can
    keep what it had. Values are reused from them when still free.
  - REUSABLE: reservations of the allocation named by
    ReusedAllocationID. A task whose target is covered by one creates an
    "existing" reservation pointing at it instead of allocating anew.

On commit, previous reservations of the allocation that did not start are
deleted and a running one ends where the new reservation starts. Requests
whose existing reservations point at a deleted or shortened reservation
return to COMPLETE in the same change set and are allocated again later in
the same pass.

# Failures

Expected failures are *report.Error values carrying a report tree. They
are stored on the request, which moves to ALLOCATION_FAILED. Any other
error aborts the attempt without touching the request and is logged.

# Dry runs

DryRun performs a task without persisting anything, with optional
REALLOCATABLE and REUSABLE seeding. The availability package uses it.
*/
package scheduler
