// Package api serves the operational HTTP endpoints of a burrow node:
// /health, /ready, /live and /metrics.
package api
