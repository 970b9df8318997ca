// Package model defines shared data types used across the relay.
//
// Conventions:
//   - Client connections are identified by a uuid issued at accept time, never by the transport handle
//   - Accounts are opaque ledger address strings (e.g. "nano_1abc...")
//   - Work request ids are uint64, monotonically increasing for the process lifetime
package model
