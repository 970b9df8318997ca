package link

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test websocket server. The handler is given a 1-based
// connection number so tests can script reconnects.
func mockWSServer(t *testing.T, handler func(int, *websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	var mu sync.Mutex
	connCount := 0

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		mu.Lock()
		connCount++
		id := connCount
		mu.Unlock()

		handler(id, conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(server *httptest.Server) ClientConfig {
	return ClientConfig{
		URL:            wsURL(server),
		ConnectTimeout: time.Second,
		WriteTimeout:   time.Second,
		PingTimeout:    30 * time.Second,
		BufferSize:     100,
	}
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(_ int, conn *websocket.Conn) { drain(conn) })
	defer server.Close()

	client := NewClient("test", testClientConfig(server), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_SendIsWrittenInOrder(t *testing.T) {
	var mu sync.Mutex
	var received []string

	server := mockWSServer(t, func(_ int, conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, string(msg))
			mu.Unlock()
		}
	})
	defer server.Close()

	client := NewClient("test", testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	for _, m := range want {
		if err := client.Send([]byte(m)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != len(want) {
		t.Fatalf("received %d frames, want %d", len(received), len(want))
	}
	for i := range want {
		if received[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, received[i], want[i])
		}
	}
}

func TestClient_Messages(t *testing.T) {
	frames := []string{
		`{"topic":"confirmation","n":1}`,
		`{"topic":"confirmation","n":2}`,
	}

	server := mockWSServer(t, func(_ int, conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient("upstream", testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	timeout := time.After(500 * time.Millisecond)
	for i, want := range frames {
		select {
		case msg := <-client.Messages():
			if string(msg.Data) != want {
				t.Errorf("message %d = %q, want %q", i, msg.Data, want)
			}
			if msg.Link != "upstream" {
				t.Errorf("Link = %q, want upstream", msg.Link)
			}
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

func TestClient_ErrorOnPeerClose(t *testing.T) {
	server := mockWSServer(t, func(_ int, conn *websocket.Conn) {
		// Return immediately; the deferred Close drops the session.
	})
	defer server.Close()

	client := NewClient("test", testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("expected an error after peer closed")
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after peer close")
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient("test", ClientConfig{URL: "ws://localhost:12345", BufferSize: 10}, nil)

	if err := client.Send([]byte("test")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(_ int, conn *websocket.Conn) { drain(conn) })
	defer server.Close()

	client := NewClient("test", testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := client.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_PingHandler(t *testing.T) {
	server := mockWSServer(t, func(_ int, conn *websocket.Conn) {
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		drain(conn)
	})
	defer server.Close()

	client := NewClient("test", testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	time.Sleep(200 * time.Millisecond)

	if !client.IsConnected() {
		t.Error("expected client to be connected after ping")
	}
}
