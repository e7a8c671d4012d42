package protocol

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// backend starts a WebSocket server that hands each connection to serve.
func backend(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collect(c *Client) <-chan Event {
	ch := make(chan Event, 16)
	c.OnEvent(func(ev Event) { ch <- ev })
	return ch
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestSendBeforeOpen(t *testing.T) {
	t.Parallel()
	c := NewClient("ws://127.0.0.1:1/ws", Options{})
	if err := c.Send(ProcessSource{Source: "x", Dimension: 4}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("got %v, want ErrNotConnected", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	t.Parallel()
	c := NewClient("ws://127.0.0.1:1/ws", Options{})
	c.Close()
	c.Close()
	if err := c.Open(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after Close: got %v, want ErrClosed", err)
	}
}

func TestOpenFailureEmitsConnectionError(t *testing.T) {
	t.Parallel()
	c := NewClient("ws://127.0.0.1:1/ws", Options{HandshakeTimeout: time.Second})
	events := collect(c)

	if err := c.Open(context.Background()); err == nil {
		t.Fatal("Open succeeded against a closed port")
	}
	if _, ok := next(t, events).(ConnectionError); !ok {
		t.Error("expected ConnectionError event")
	}
	if c.Connected() {
		t.Error("Connected after failed Open")
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	received := make(chan []byte, 1)
	url := backend(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data

		frame, _ := EncodeFrame(1, nil)
		good := `{"action":"FrameData","data":{"frame":{"frame_id":1,"frame_data":[[9,9,9,255]]}}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, frame) // zero pixels: malformed
		_ = conn.WriteMessage(websocket.TextMessage, []byte(good))
		errMsg, _ := EncodeError("boom")
		_ = conn.WriteMessage(websocket.TextMessage, errMsg)
		// Hold the connection until the client goes away.
		_, _, _ = conn.ReadMessage()
	})

	c := NewClient(url, Options{})
	events := collect(c)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	if err := c.Send(ProcessSource{Source: "dots", Dimension: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case data := <-received:
		want := `{"action":"ProcessSourceCode","data":{"source":"dots","dimension":1}}`
		if string(data) != want {
			t.Errorf("backend got %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received intent")
	}

	fr, ok := next(t, events).(FrameReceived)
	if !ok || fr.Frame.ID() != 1 {
		t.Fatalf("first event: got %#v, want FrameReceived id 1", fr)
	}
	if se, ok := next(t, events).(StreamError); !ok || se.Message != "boom" {
		t.Errorf("second event: got %#v, want StreamError", se)
	}
}

func TestDropEmitsConnectionError(t *testing.T) {
	t.Parallel()
	url := backend(t, func(conn *websocket.Conn) {
		// Returning closes the connection.
	})

	c := NewClient(url, Options{})
	events := collect(c)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := next(t, events).(ConnectionError); !ok {
		t.Fatal("expected ConnectionError after server hung up")
	}
	if c.Connected() {
		t.Error("Connected after drop")
	}
	if err := c.Send(ProcessSource{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after drop: got %v", err)
	}
	c.Close()
	c.Close()
}

func TestCloseIsSilent(t *testing.T) {
	t.Parallel()
	url := backend(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	c := NewClient(url, Options{})
	events := collect(c)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.Close()

	select {
	case ev := <-events:
		t.Errorf("unexpected event after Close: %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
