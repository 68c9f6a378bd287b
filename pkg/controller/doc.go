/*
Package controller implements the request lifecycle on top of the
scheduler: creating, modifying, reverting, deleting and retrying
reservation requests, plus resource management and availability checks.

A modification never edits a request in place. It stores a new version
pointing to the old one through ModifiedRequestID, moves the old version
to MODIFIED and hands the allocation over to the new version, whose next
allocation attempt treats the old reservations as reallocatable:

	v1 ACTIVE ──modify──▶ v1 MODIFIED
	                      v2 ACTIVE (allocation of v1)
	v2 ──revert──▶ v1 ACTIVE, v2 removed (only while v2 is not ALLOCATED)

Deleting a request releases its allocation at once: reservations that did
not start are removed and running ones end now.

Permissions are checked through an Authorizer before any state is read
for writing. The default AllowAll suits single-tenant deployments.
*/
package controller
