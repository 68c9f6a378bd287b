/*
Package types defines the leaf data of burrow: resources and their
capabilities, time intervals, allocations, reservations, technologies and
aliases, and the id generators.

Entities refer to each other by id. A reservation names its parent and
children by id and its owner through AllocationID; resolving those ids is
the job of the store.

Intervals are half-open: [10:00, 11:00) and [11:00, 12:00) do not
overlap.
*/
package types
