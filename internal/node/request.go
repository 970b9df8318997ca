package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// HTTPError is a non-2xx response from the node.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("node rpc http %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// RPCError is an {"error": ...} reply from the node.
type RPCError struct {
	Action  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("node %s: %s", e.Action, e.Message)
}

// Call posts body to the node once and returns the response body verbatim.
func (c *Client) Call(ctx context.Context, body []byte) ([]byte, error) {
	return c.doRequest(ctx, body)
}

// doRequest posts one RPC body.
func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       out,
		}
	}

	return out, nil
}

// doWithRetry posts body with exponential backoff on transport failures and
// retryable HTTP statuses. Only idempotent calls use it.
func (c *Client) doWithRetry(ctx context.Context, action string, body []byte) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("retrying node rpc",
				"attempt", attempt,
				"backoff", jitter,
				"action", action,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		out, err := c.doRequest(ctx, body)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// call encodes req, posts it with retries and decodes the reply into result.
// A reply carrying "error" becomes an *RPCError.
func (c *Client) call(ctx context.Context, action string, req, result any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", action, err)
	}

	out, err := c.doWithRetry(ctx, action, body)
	if err != nil {
		return err
	}

	var status struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(out, &status); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", action, err)
	}
	if status.Error != "" {
		return &RPCError{Action: action, Message: status.Error}
	}

	if err := json.Unmarshal(out, result); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", action, err)
	}
	return nil
}
