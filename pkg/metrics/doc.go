/*
Package metrics defines burrow's Prometheus metrics and health endpoints.

Metrics are registered at init on the default registry and served by
Handler. Gauges for stored entities and raft state are refreshed every
15 seconds by a Collector; counters and histograms are updated inline by
the scheduler, the reconciler and the availability checker.

The health handlers report per-component status. /health is healthy when
every registered component is; /ready requires the critical components
("store" and "scheduler" by default) to be registered and healthy; /live
always answers.
*/
package metrics
