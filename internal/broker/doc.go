// Package broker coordinates subscriptions and work requests.
//
// The Broker owns the subscription registry, the work correlator and the
// listen-all set behind one mutex, so every cross-map invariant holds between
// calls. Outbound frames to links are queued, never written inline, and node
// fallbacks run on their own goroutines, so nothing blocks while the mutex is
// held.
//
// Callers:
//   - session.Manager: Connected, RegisterAccount, UnregisterAccount,
//     ListenAll, WorkGenerate, Disconnected
//   - router.Router: Subscribers, Listeners
//   - link.Link hooks: UpstreamOpened, UpstreamAllOpened
//   - rpcproxy: GenerateWork
package broker
