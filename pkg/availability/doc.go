// Package availability answers "could this be allocated now?" by running
// the allocation engine against a read-only store view. Results are
// cached per store revision.
package availability
