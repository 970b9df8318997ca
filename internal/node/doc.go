// Package node is a client for the node's HTTP RPC.
//
// It covers the calls the relay makes on its own behalf (work_generate for
// the fallback path, send and account_info for the faucet) and a raw Call for
// the passthrough proxy. Node-level failures, which arrive as {"error": ...}
// with a 200 status, are returned as *RPCError; non-2xx responses as
// *HTTPError.
package node
