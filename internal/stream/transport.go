package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

// transport is one live server-push connection delivering whole JSON
// messages. ReadMessage blocks until the next message or a connection error.
type transport interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type dialFunc func(ctx context.Context, rawURL string) (transport, error)

// dialAuto picks the transport from the URL scheme: ws/wss dial a websocket,
// http/https open a long-lived ND-JSON response body.
func dialAuto(ctx context.Context, rawURL string) (transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
		return dialWebsocket(ctx, rawURL)
	case "http", "https":
		return dialNDJSON(ctx, rawURL)
	default:
		return nil, fmt.Errorf("unsupported stream scheme %q", u.Scheme)
	}
}

type websocketTransport struct {
	conn *websocket.Conn
}

func dialWebsocket(ctx context.Context, rawURL string) (transport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &websocketTransport{conn: conn}, nil
}

func (t *websocketTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *websocketTransport) Close() error {
	return t.conn.Close()
}

type ndjsonTransport struct {
	body   interface{ Close() error }
	reader *bufio.Reader
	cancel context.CancelFunc
}

func dialNDJSON(ctx context.Context, rawURL string) (transport, error) {
	// The request context outlives the dial: cancelling it is how Close
	// unblocks a pending read.
	streamCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-streamCtx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "application/x-ndjson")

	// No client timeout: the stream is long-lived by design.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("open stream: http %s", resp.Status)
	}
	return &ndjsonTransport{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
		cancel: cancel,
	}, nil
}

// ReadMessage returns the next non-empty line. SSE-style "data:" prefixes
// are tolerated so the same endpoint can serve EventSource clients.
func (t *ndjsonTransport) ReadMessage() ([]byte, error) {
	for {
		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		line = bytes.TrimPrefix(line, []byte("data:"))
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

func (t *ndjsonTransport) Close() error {
	t.cancel()
	return t.body.Close()
}
