// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connected clients and subscribed accounts
//   - Confirmation events routed and per-client deliveries
//   - Work request outcomes and pending requests
//   - Upstream and provider link state and reconnects
//
// A nil *Metrics is valid and records nothing.
package metrics
