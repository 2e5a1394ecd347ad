// ABOUTME: Tests for the stream websocket client
// ABOUTME: Tests ordered delivery and close notification against a test server
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) HandleMessage(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, string(data))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestClientOrderedDeliveryAndServerClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 20; i++ {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("%d", i)))
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	closed := make(chan error, 2)
	rec := &recorder{}
	c, err := Dial(context.Background(), Config{
		Endpoint: wsURL(srv),
		OnClose:  func(err error) { closed <- err },
	}, rec)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	select {
	case err := <-closed:
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("OnClose error = %v, want normal closure", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnClose not called")
	}

	got := rec.snapshot()
	if len(got) != 20 {
		t.Fatalf("got %d messages, want 20", len(got))
	}
	for i, m := range got {
		if m != fmt.Sprintf("%d", i) {
			t.Fatalf("message %d = %q, out of order", i, m)
		}
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after server close")
	}
	if c.Received() != 20 {
		t.Errorf("Received() = %d, want 20", c.Received())
	}

	// Close after remote close is a no-op and OnClose fires only once
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	select {
	case <-closed:
		t.Error("OnClose called twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientLocalClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	closed := make(chan error, 1)
	c, err := Dial(context.Background(), Config{
		Endpoint: wsURL(srv),
		OnClose:  func(err error) { closed <- err },
	}, HandlerFunc(func([]byte) {}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("OnClose error = %v, want nil for local close", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnClose not called")
	}
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := Dial(ctx, Config{Endpoint: "ws://127.0.0.1:1/stream"}, HandlerFunc(func([]byte) {})); err == nil {
		t.Error("expected dial error")
	}
}
