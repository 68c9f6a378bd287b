// Package request holds reservation requests and the rules governing
// their lifecycle: versioning (ACTIVE, MODIFIED, DELETED), allocation
// progress (NOT_COMPLETE through ALLOCATED or ALLOCATION_FAILED) and the
// checks that decide whether a request may be modified, deleted,
// reverted or reused.
//
// Both state machines are expressed with looplab/fsm. Operations that
// persist requests live in package controller.
package request
