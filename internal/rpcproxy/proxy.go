package rpcproxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rickgao/nano-relay/internal/model"
	"github.com/rickgao/nano-relay/internal/node"
)

// ActionRequestNano is the faucet action.
const ActionRequestNano = "request_nano"

// Error messages returned to callers.
const (
	MsgMalformed    = "malformed json request"
	MsgNotAllowed   = "action not allowed"
	MsgNodeFailed   = "node request failed"
	MsgWorkFailed   = "work generation failed"
	MsgFaucetFailed = "faucet request failed"
	MsgMissingField = "missing field"
)

// DefaultAllowedActions are forwarded when no list is configured.
var DefaultAllowedActions = []string{
	"block_count",
	"account_info",
	"account_balance",
	"block_info",
	"pending",
	"process",
	"work_generate",
}

// Node is the node RPC used by the proxy.
type Node interface {
	Call(ctx context.Context, body []byte) ([]byte, error)
	Send(ctx context.Context, wallet, source, destination, amount string) (string, error)
	AccountInfo(ctx context.Context, account string) (node.AccountInfo, error)
}

// Worker serves work_generate through the provider.
type Worker interface {
	GenerateWork(ctx context.Context, hash string) (string, error)
	ProviderAvailable() bool
}

// FaucetConfig configures request_nano.
type FaucetConfig struct {
	Enabled bool
	Wallet  string
	Source  string
	Amount  string
}

// Config holds proxy settings.
type Config struct {
	AllowedActions []string
	Faucet         FaucetConfig
	MaxBodySize    int64
	Timeout        time.Duration
}

// FaucetReply is the request_nano response.
type FaucetReply struct {
	Account  string `json:"account"`
	Amount   string `json:"amount"`
	SendHash string `json:"send_hash"`
	Frontier string `json:"frontier"`
}

type errorReply struct {
	Error string `json:"error"`
}

// Proxy is an http.Handler for the RPC front.
type Proxy struct {
	cfg    Config
	node   Node
	worker Worker
	logger *slog.Logger
}

// New creates a Proxy. worker may be nil.
func New(cfg Config, n Node, worker Worker, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.AllowedActions) == 0 {
		cfg.AllowedActions = DefaultAllowedActions
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 64 * 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Proxy{
		cfg:    cfg,
		node:   n,
		worker: worker,
		logger: logger.With("component", "rpcproxy"),
	}
}

// ServeHTTP handles one RPC request.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorReply{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, p.cfg.MaxBodySize))
	if err != nil || !gjson.ValidBytes(body) {
		writeJSON(w, http.StatusOK, errorReply{Error: MsgMalformed})
		return
	}
	action := gjson.GetBytes(body, "action").String()

	ctx, cancel := context.WithTimeout(r.Context(), p.cfg.Timeout)
	defer cancel()

	switch {
	case action == ActionRequestNano && p.cfg.Faucet.Enabled:
		p.faucet(ctx, w, gjson.GetBytes(body, "account").String())

	case !slices.Contains(p.cfg.AllowedActions, action):
		p.logger.Debug("refusing rpc action", "action", action, "remote", r.RemoteAddr)
		writeJSON(w, http.StatusOK, errorReply{Error: MsgNotAllowed})

	case action == model.NodeWorkGenerate && p.worker != nil && p.worker.ProviderAvailable():
		p.workGenerate(ctx, w, gjson.GetBytes(body, "hash").String())

	default:
		p.forward(ctx, w, action, body)
	}
}

func (p *Proxy) forward(ctx context.Context, w http.ResponseWriter, action string, body []byte) {
	out, err := p.node.Call(ctx, body)
	if err != nil {
		p.logger.Warn("node rpc failed", "action", action, "error", err)

		var httpErr *node.HTTPError
		if errors.As(err, &httpErr) && json.Valid(httpErr.Body) {
			writeRaw(w, httpErr.StatusCode, httpErr.Body)
			return
		}
		writeJSON(w, http.StatusBadGateway, errorReply{Error: MsgNodeFailed})
		return
	}
	writeRaw(w, http.StatusOK, out)
}

func (p *Proxy) workGenerate(ctx context.Context, w http.ResponseWriter, hash string) {
	if hash == "" {
		writeJSON(w, http.StatusOK, errorReply{Error: MsgMissingField + ": hash"})
		return
	}

	work, err := p.worker.GenerateWork(ctx, hash)
	if err != nil {
		p.logger.Warn("work_generate failed", "hash", hash, "error", err)
		writeJSON(w, http.StatusOK, model.WorkReply{Hash: hash, Error: MsgWorkFailed})
		return
	}
	writeJSON(w, http.StatusOK, model.WorkReply{Work: work, Hash: hash})
}

// faucet sends the configured amount to account and reports its frontier,
// "0" if the account is not opened yet.
func (p *Proxy) faucet(ctx context.Context, w http.ResponseWriter, account string) {
	if account == "" {
		writeJSON(w, http.StatusOK, errorReply{Error: MsgMissingField + ": account"})
		return
	}
	f := p.cfg.Faucet

	sendHash, err := p.node.Send(ctx, f.Wallet, f.Source, account, f.Amount)
	if err != nil {
		p.logger.Warn("faucet send failed", "account", account, "error", err)
		writeJSON(w, http.StatusOK, errorReply{Error: MsgFaucetFailed})
		return
	}

	frontier := "0"
	info, err := p.node.AccountInfo(ctx, account)
	switch {
	case err == nil:
		frontier = info.Frontier
	case !node.IsAccountNotFound(err):
		p.logger.Warn("faucet account_info failed", "account", account, "error", err)
	}

	p.logger.Info("faucet sent", "account", account, "amount", f.Amount, "block", sendHash)
	writeJSON(w, http.StatusOK, FaucetReply{
		Account:  account,
		Amount:   f.Amount,
		SendHash: sendHash,
		Frontier: frontier,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
