package node

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func rpcServer(t *testing.T, handler func(req map[string]string) (int, string)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("request body %s: %v", body, err)
		}
		status, resp := handler(req)
		w.WriteHeader(status)
		io.WriteString(w, resp)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestClient(url string) *Client {
	return NewClient(url, WithRetries(2, time.Millisecond), WithTimeout(time.Second))
}

func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{}
	c := NewClient("http://node", WithHTTPClient(hc), WithRetries(5, time.Second))

	if c.httpClient != hc {
		t.Error("WithHTTPClient not applied")
	}
	if c.maxRetries != 5 || c.retryBackoff != time.Second {
		t.Errorf("retries = %d/%v, want 5/1s", c.maxRetries, c.retryBackoff)
	}
}

func TestClient_WorkGenerate(t *testing.T) {
	server, _ := rpcServer(t, func(req map[string]string) (int, string) {
		if req["action"] != "work_generate" || req["hash"] != "H1" {
			t.Errorf("request = %v, want work_generate H1", req)
		}
		return http.StatusOK, `{"work":"2bf29ef00786a6bc","difficulty":"ffffffd21c3933f4","hash":"H1"}`
	})

	work, err := newTestClient(server.URL).WorkGenerate(context.Background(), "H1")
	if err != nil {
		t.Fatalf("WorkGenerate failed: %v", err)
	}
	if work != "2bf29ef00786a6bc" {
		t.Errorf("work = %q, want 2bf29ef00786a6bc", work)
	}
}

func TestClient_WorkGenerateRPCError(t *testing.T) {
	server, calls := rpcServer(t, func(map[string]string) (int, string) {
		return http.StatusOK, `{"error":"Invalid block hash"}`
	})

	_, err := newTestClient(server.URL).WorkGenerate(context.Background(), "bad")

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want *RPCError", err)
	}
	if rpcErr.Message != "Invalid block hash" {
		t.Errorf("Message = %q, want Invalid block hash", rpcErr.Message)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (rpc errors are not retried)", calls.Load())
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	server, calls := rpcServer(t, func(map[string]string) (int, string) {
		return http.StatusBadGateway, "bad gateway"
	})

	_, err := newTestClient(server.URL).WorkGenerate(context.Background(), "H1")

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("error = %v, want *HTTPError 502", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	server, calls := rpcServer(t, func(map[string]string) (int, string) {
		return http.StatusBadRequest, "bad request"
	})

	_, err := newTestClient(server.URL).WorkGenerate(context.Background(), "H1")

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.IsRetryable() {
		t.Fatalf("error = %v, want non-retryable *HTTPError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestClient_CallReturnsBodyVerbatim(t *testing.T) {
	server, _ := rpcServer(t, func(map[string]string) (int, string) {
		return http.StatusOK, `{"count":"1000","unchecked":"5"}`
	})

	out, err := newTestClient(server.URL).Call(context.Background(), []byte(`{"action":"block_count"}`))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(out) != `{"count":"1000","unchecked":"5"}` {
		t.Errorf("body = %s", out)
	}
}

func TestClient_SendAndAccountInfo(t *testing.T) {
	var sendID string
	server, _ := rpcServer(t, func(req map[string]string) (int, string) {
		switch req["action"] {
		case "send":
			sendID = req["id"]
			if req["wallet"] != "W" || req["source"] != "S" || req["destination"] != "D" || req["amount"] != "100" {
				t.Errorf("send request = %v", req)
			}
			return http.StatusOK, `{"block":"SENDHASH"}`
		case "account_info":
			if req["account"] == "UNOPENED" {
				return http.StatusOK, `{"error":"Account not found"}`
			}
			return http.StatusOK, `{"frontier":"F","balance":"100","block_count":"2"}`
		}
		return http.StatusOK, `{"error":"unexpected"}`
	})
	c := newTestClient(server.URL)
	ctx := context.Background()

	hash, err := c.Send(ctx, "W", "S", "D", "100")
	if err != nil || hash != "SENDHASH" {
		t.Errorf("Send() = %q, %v, want SENDHASH, nil", hash, err)
	}
	if sendID == "" {
		t.Error("send request carried no id")
	}

	info, err := c.AccountInfo(ctx, "D")
	if err != nil || info.Frontier != "F" || info.Balance != "100" {
		t.Errorf("AccountInfo() = %+v, %v", info, err)
	}

	_, err = c.AccountInfo(ctx, "UNOPENED")
	if !IsAccountNotFound(err) {
		t.Errorf("AccountInfo(unopened) error = %v, want account not found", err)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	server, _ := rpcServer(t, func(map[string]string) (int, string) {
		return http.StatusServiceUnavailable, ""
	})
	c := NewClient(server.URL, WithRetries(5, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.WorkGenerate(ctx, "H1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}
