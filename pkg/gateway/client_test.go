package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair dials a test websocket server and returns both ends.
func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-serverCh
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}

func TestClientPrompt(t *testing.T) {
	t.Run("reply resolves the pending prompt", func(t *testing.T) {
		serverConn, clientConn := wsPair(t)
		c := newClient(serverConn)

		// The remote end echoes the prompt ID back with an answer.
		go func() {
			var msg Message
			if err := clientConn.ReadJSON(&msg); err != nil {
				return
			}
			clientConn.WriteJSON(Message{Type: msgReply, ID: msg.ID, Text: "a laptop for travel"})
		}()

		done := make(chan Message, 1)
		go func() {
			reply, err := c.prompt(context.Background(), Message{Type: msgClarify, Question: "what for?"})
			if err != nil {
				t.Errorf("prompt failed: %v", err)
			}
			done <- reply
		}()

		// Pump the reply from the socket into the pending map the way the
		// server read loop does.
		var incoming Message
		if err := serverConn.ReadJSON(&incoming); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if !c.deliverReply(incoming) {
			t.Fatal("deliverReply found no pending prompt")
		}

		select {
		case reply := <-done:
			if reply.Text != "a laptop for travel" {
				t.Errorf("Unexpected reply: %+v", reply)
			}
		case <-time.After(time.Second):
			t.Fatal("prompt did not resolve")
		}
	})

	t.Run("cancellation unblocks the prompt", func(t *testing.T) {
		serverConn, _ := wsPair(t)
		c := newClient(serverConn)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := c.prompt(ctx, Message{Type: msgClarify, Question: "anyone there?"})
		if err == nil {
			t.Error("Expected error after cancellation")
		}
	})

	t.Run("close fails pending prompts", func(t *testing.T) {
		serverConn, _ := wsPair(t)
		c := newClient(serverConn)

		errCh := make(chan error, 1)
		go func() {
			_, err := c.prompt(context.Background(), Message{Type: msgClarify, Question: "?"})
			errCh <- err
		}()

		// Give the prompt time to register before closing.
		time.Sleep(20 * time.Millisecond)
		c.close()

		select {
		case err := <-errCh:
			if err == nil {
				t.Error("Expected error after close")
			}
		case <-time.After(time.Second):
			t.Fatal("prompt did not unblock on close")
		}
	})

	t.Run("unknown reply id is reported", func(t *testing.T) {
		serverConn, _ := wsPair(t)
		c := newClient(serverConn)

		if c.deliverReply(Message{Type: msgReply, ID: "ghost"}) {
			t.Error("deliverReply should fail for unknown id")
		}
	})
}
