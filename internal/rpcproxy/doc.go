// Package rpcproxy is the plain HTTP RPC front for clients.
//
// POST / takes a node RPC body. Allow-listed actions are forwarded to the
// node verbatim and the node's reply returned as is. work_generate is served
// by the broker while the work provider is connected, and request_nano runs
// the development faucet when enabled. Everything else is refused.
package rpcproxy
