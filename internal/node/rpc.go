package node

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rickgao/nano-relay/internal/model"
)

// AccountNotFound is the node's error for an unopened account.
const AccountNotFound = "Account not found"

// AccountInfo is the subset of account_info the relay uses.
type AccountInfo struct {
	Frontier           string `json:"frontier"`
	OpenBlock          string `json:"open_block"`
	Balance            string `json:"balance"`
	BlockCount         string `json:"block_count"`
	ConfirmationHeight string `json:"confirmation_height,omitempty"`
}

// WorkGenerate asks the node to compute work for hash.
func (c *Client) WorkGenerate(ctx context.Context, hash string) (string, error) {
	var resp model.NodeWorkResponse
	err := c.call(ctx, model.NodeWorkGenerate, model.NodeWorkRequest{
		Action: model.NodeWorkGenerate,
		Hash:   hash,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Work == "" {
		return "", &RPCError{Action: model.NodeWorkGenerate, Message: "empty work"}
	}
	return resp.Work, nil
}

// Send sends amount raw from source to destination using the wallet. The
// request carries a unique id, so the node ignores a retried duplicate.
func (c *Client) Send(ctx context.Context, wallet, source, destination, amount string) (string, error) {
	req := struct {
		Action      string `json:"action"`
		Wallet      string `json:"wallet"`
		Source      string `json:"source"`
		Destination string `json:"destination"`
		Amount      string `json:"amount"`
		ID          string `json:"id"`
	}{
		Action:      "send",
		Wallet:      wallet,
		Source:      source,
		Destination: destination,
		Amount:      amount,
		ID:          uuid.NewString(),
	}

	var resp struct {
		Block string `json:"block"`
	}
	if err := c.call(ctx, req.Action, req, &resp); err != nil {
		return "", err
	}
	return resp.Block, nil
}

// AccountInfo returns the account's frontier and balance.
func (c *Client) AccountInfo(ctx context.Context, account string) (AccountInfo, error) {
	req := struct {
		Action  string `json:"action"`
		Account string `json:"account"`
	}{Action: "account_info", Account: account}

	var info AccountInfo
	if err := c.call(ctx, req.Action, req, &info); err != nil {
		return AccountInfo{}, err
	}
	return info, nil
}

// IsAccountNotFound reports whether err is the node's unopened-account error.
func IsAccountNotFound(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Message == AccountNotFound
}
