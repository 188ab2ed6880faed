package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cory-johannsen/bridge/internal/protocol"
)

// WSClient is a WebSocket test client speaking the bridge frame protocol.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials the given ws:// URL and returns a test client.
//
// Precondition: url must point at a listening bridge server.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v [%s]", url, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// Send writes one frame of the given type.
func (c *WSClient) Send(eventType string, payload any) {
	c.t.Helper()
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		c.t.Fatalf("encoding %s: %v", eventType, err)
	}
	c.SendRaw(data)
}

// SendRaw writes data as a single text message.
func (c *WSClient) SendRaw(data []byte) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.t.Fatalf("sending %s: %v", data, err)
	}
}

// Read returns the next frame, failing the test on timeout.
func (c *WSClient) Read(timeout time.Duration) protocol.Frame {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, data, err := c.conn.Read(ctx)
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	f, err := protocol.Decode(data)
	if err != nil {
		c.t.Fatalf("decoding frame %s: %v", data, err)
	}
	return f
}

// Expect reads the next frame, fails unless it has the given type, and
// decodes its payload into out when out is non-nil.
func (c *WSClient) Expect(eventType string, out any, timeout time.Duration) {
	c.t.Helper()
	f := c.Read(timeout)
	if f.Type != eventType {
		c.t.Fatalf("expected %q frame, got %q (%s)", eventType, f.Type, f.Payload)
	}
	if out == nil {
		return
	}
	if err := json.Unmarshal(f.Payload, out); err != nil {
		c.t.Fatalf("decoding %s payload: %v", eventType, err)
	}
}

// Close closes the connection with a normal closure.
func (c *WSClient) Close() {
	c.conn.Close(websocket.StatusNormalClosure, "")
}
