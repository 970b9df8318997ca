// relayclient connects to a relay and prints every delivery to the console.
// Usage: go run ./cmd/relayclient --url ws://127.0.0.1:28102/ --accounts nano_1abc,nano_3def
//
// With --all the client also turns on listen_all (relay must run with
// broadcast enabled). Each --work hash is requested once after connecting.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/rickgao/nano-relay/internal/model"
	"github.com/rickgao/nano-relay/internal/version"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:28102/", "relay websocket url")
	accounts := flag.String("accounts", "", "comma separated accounts to register")
	all := flag.Bool("all", false, "enable listen_all")
	hashes := flag.String("work", "", "comma separated block hashes to request work for")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	conn, _, err := dialer.DialContext(ctx, *url, header)
	if err != nil {
		logger.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	logger.Info("connected", "url", *url)

	for _, req := range buildRequests(splitCSV(*accounts), *all, splitCSV(*hashes)) {
		if err := conn.WriteJSON(req); err != nil {
			logger.Error("failed to send request", "action", req.Action, "error", err)
			os.Exit(1)
		}
		logger.Info("sent", "action", req.Action, "account", req.Account, "hash", req.Hash)
	}

	go func() {
		<-ctx.Done()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	var received int
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("connection closed", "error", err)
			}
			break
		}
		received++
		fmt.Println(describe(data, *verbose))
	}

	logger.Info("shutdown complete", "received", received)
}

// buildRequests returns the control messages sent after connecting.
func buildRequests(accounts []string, all bool, hashes []string) []model.ClientRequest {
	reqs := make([]model.ClientRequest, 0, len(accounts)+len(hashes)+1)
	for _, a := range accounts {
		reqs = append(reqs, model.ClientRequest{Action: model.ActionRegisterAccount, Account: a})
	}
	if all {
		reqs = append(reqs, model.ClientRequest{Action: model.ActionListenAll})
	}
	for _, h := range hashes {
		reqs = append(reqs, model.ClientRequest{Action: model.ActionWorkGenerate, Hash: h})
	}
	return reqs
}

// describe formats one delivery for the console.
func describe(data []byte, verbose bool) string {
	if !gjson.ValidBytes(data) {
		return fmt.Sprintf("[UNKNOWN] %s", data)
	}

	if verbose {
		var out json.RawMessage = data
		pretty, err := json.MarshalIndent(out, "", "  ")
		if err == nil {
			data = pretty
		}
	}

	res := gjson.GetManyBytes(data,
		"topic",
		"is_filtered",
		model.EventAccountPath,
		"message.hash",
		"message.amount",
		"hash",
		"work",
		"error",
	)

	switch {
	case res[0].String() == model.TopicConfirmation:
		if verbose {
			return fmt.Sprintf("[CONFIRMATION] %s", data)
		}
		return fmt.Sprintf("[CONFIRMATION] account=%s hash=%s amount=%s filtered=%t",
			res[2].String(), res[3].String(), res[4].String(), res[1].Bool())

	case res[7].Exists():
		return fmt.Sprintf("[WORK ERROR] hash=%s error=%s", res[5].String(), res[7].String())

	case res[6].Exists():
		return fmt.Sprintf("[WORK] hash=%s work=%s", res[5].String(), res[6].String())

	default:
		return fmt.Sprintf("[UNKNOWN] %s", data)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
