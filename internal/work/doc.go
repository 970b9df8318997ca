// Package work tracks proof-of-work requests relayed to the external provider.
//
// Each request moves through
//
//	Sent -> Replied
//	Sent -> Fallback -> Replied
//	Sent | Fallback -> Abandoned
//
// Sent means the provider owns it; Fallback means the node is computing it;
// Abandoned means the requesting client went away and whatever arrives later is
// dropped. The Correlator holds no lock; the broker serializes access.
package work
