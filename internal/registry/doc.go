// Package registry implements the Subscription Registry.
//
// The Registry keeps a bidirectional many-to-many index between client
// connections and the accounts they watch, and reports the subscription
// deltas the upstream node must see:
//   - DeltaAdd when an account gains its first subscriber
//   - DeltaRemove when an account loses its last subscriber
//
// It does no locking of its own; the broker serializes every call under the
// same mutex that guards the work correlator.
package registry
