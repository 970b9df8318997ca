package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ClientID identifies a downstream client connection.
type ClientID = uuid.UUID

// NewClientID issues a fresh client id.
func NewClientID() ClientID {
	return uuid.New()
}

// -----------------------------------------------------------------------------
// Downstream (client-facing) protocol
// -----------------------------------------------------------------------------

// Client actions.
const (
	ActionRegisterAccount   = "register_account"
	ActionUnregisterAccount = "unregister_account"
	ActionListenAll         = "listen_all"
	ActionUnlistenAll       = "unlisten_all"
	ActionWorkGenerate      = "work_generate"
)

// ClientRequest is any control message sent by a client.
type ClientRequest struct {
	Action  string `json:"action"`
	Account string `json:"account,omitempty"`
	Hash    string `json:"hash,omitempty"`
}

// WorkReply is delivered to a client once work for its hash is available.
// Exactly one of Work or Error is set.
type WorkReply struct {
	Work  string `json:"work,omitempty"`
	Hash  string `json:"hash"`
	Error string `json:"error,omitempty"`
}

// -----------------------------------------------------------------------------
// Upstream (node) protocol
// -----------------------------------------------------------------------------

// Node websocket actions and topics.
const (
	UpstreamSubscribe    = "subscribe"
	UpstreamUpdate       = "update"
	TopicConfirmation    = "confirmation"
	NodeWorkGenerate     = "work_generate"
	FilteredMarkerField  = "is_filtered"
	EventAccountPath     = "message.account"
	EventLinkAccountPath = "message.block.link_as_account"
)

// SubscriptionOptions are the options of a confirmation subscription.
type SubscriptionOptions struct {
	Accounts    []string `json:"accounts,omitempty"`
	AccountsAdd []string `json:"accounts_add,omitempty"`
	AccountsDel []string `json:"accounts_del,omitempty"`
}

// UpstreamCommand is sent to the node websocket.
type UpstreamCommand struct {
	Action  string               `json:"action"`
	Topic   string               `json:"topic"`
	Options *SubscriptionOptions `json:"options,omitempty"`
}

// SubscribeAccounts builds the (re)subscription covering the full account set.
// An empty set still yields an accounts filter so the node sends nothing unsolicited.
func SubscribeAccounts(accounts []string) UpstreamCommand {
	if accounts == nil {
		accounts = []string{}
	}
	return UpstreamCommand{
		Action:  UpstreamSubscribe,
		Topic:   TopicConfirmation,
		Options: &SubscriptionOptions{Accounts: accounts},
	}
}

// UpdateAccounts builds an incremental change to the filtered subscription.
func UpdateAccounts(add, del []string) UpstreamCommand {
	return UpstreamCommand{
		Action:  UpstreamUpdate,
		Topic:   TopicConfirmation,
		Options: &SubscriptionOptions{AccountsAdd: add, AccountsDel: del},
	}
}

// SubscribeAll builds the unfiltered confirmation subscription.
func SubscribeAll() UpstreamCommand {
	return UpstreamCommand{Action: UpstreamSubscribe, Topic: TopicConfirmation}
}

// MarshalJSON keeps "accounts": [] on the wire for an empty filtered subscription.
func (o SubscriptionOptions) MarshalJSON() ([]byte, error) {
	out := make(map[string][]string, 1)
	if o.Accounts != nil {
		out["accounts"] = o.Accounts
	}
	if len(o.AccountsAdd) > 0 {
		out["accounts_add"] = o.AccountsAdd
	}
	if len(o.AccountsDel) > 0 {
		out["accounts_del"] = o.AccountsDel
	}
	return json.Marshal(out)
}

// NodeWorkRequest is the node RPC work_generate body.
type NodeWorkRequest struct {
	Action string `json:"action"`
	Hash   string `json:"hash"`
}

// NodeWorkResponse is the node RPC work_generate reply.
type NodeWorkResponse struct {
	Work  string `json:"work,omitempty"`
	Error string `json:"error,omitempty"`
}

// -----------------------------------------------------------------------------
// Work provider protocol
// -----------------------------------------------------------------------------

// ProviderRequest is sent to the external proof-of-work provider.
type ProviderRequest struct {
	User   string `json:"user"`
	APIKey string `json:"api_key"`
	Hash   string `json:"hash"`
	ID     uint64 `json:"id"`
}
