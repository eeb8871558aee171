package source

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestHubBroadcastAndCancel(t *testing.T) {
	hub := NewHub(4)
	ch1, cancel1 := hub.Subscribe()
	ch2, cancel2 := hub.Subscribe()
	defer cancel2()

	hub.Publish([]byte(`{"n":1}`))
	for _, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case msg := <-ch:
			if string(msg) != `{"n":1}` {
				t.Fatalf("unexpected message %q", msg)
			}
		default:
			t.Fatal("subscriber did not receive broadcast")
		}
	}

	cancel1()
	if got := hub.Subscribers(); got != 1 {
		t.Fatalf("expected 1 subscriber after cancel, got %d", got)
	}
	if _, ok := <-ch1; ok {
		t.Fatal("cancelled channel should be closed")
	}
}

func TestHubSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		hub.Publish([]byte("a"))
		hub.Publish([]byte("b"))
		hub.Publish([]byte("c"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber")
	}
	if msg := <-ch; string(msg) != "a" {
		t.Fatalf("expected first message retained, got %q", msg)
	}
}

func TestEmitEndpointBroadcasts(t *testing.T) {
	hub := NewHub(4)
	srv := httptest.NewServer(NewServer(hub, testLogger()).Handler())
	defer srv.Close()

	ch, cancel := hub.Subscribe()
	defer cancel()

	resp, err := http.Post(srv.URL+"/emit", "application/json", strings.NewReader(`{"type":"trace","event":"start","agent":"architect"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	select {
	case msg := <-ch:
		var env map[string]any
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env["agent"] != "architect" {
			t.Fatalf("unexpected payload: %v", env)
		}
	case <-time.After(time.Second):
		t.Fatal("emitted event never reached the hub")
	}
}

func TestEmitRejectsInvalidJSON(t *testing.T) {
	hub := NewHub(4)
	srv := httptest.NewServer(NewServer(hub, testLogger()).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/emit", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebsocketStreamDeliversPublished(t *testing.T) {
	hub := NewHub(4)
	srv := httptest.NewServer(NewServer(hub, testLogger()).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/activity/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the subscription to register before publishing.
	deadline := time.Now().Add(time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish([]byte(`{"type":"trace","event":"status","agent":"aether"}`))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), `"aether"`) {
		t.Fatalf("unexpected frame %q", msg)
	}
}

func TestNDJSONStreamDeliversPublished(t *testing.T) {
	hub := NewHub(4)
	srv := httptest.NewServer(NewServer(hub, testLogger()).Handler())
	defer srv.Close()

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/activity/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish([]byte(`{"type":"job","event":"start","job_id":"j1"}`))

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	if !strings.Contains(line, `"j1"`) {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestScenarioEmitsBalancedSession(t *testing.T) {
	hub := NewHub(256)
	ch, cancel := hub.Subscribe()
	defer cancel()

	sc := NewScenario(hub, testLogger(), 1)
	sc.Beat = time.Millisecond
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go sc.runSession(ctx)

	starts, ends := 0, 0
	var jobComplete bool
	timeout := time.After(2 * time.Second)
	for !jobComplete {
		select {
		case msg := <-ch:
			var env map[string]any
			if err := json.Unmarshal(msg, &env); err != nil {
				t.Fatalf("scenario emitted invalid JSON: %v", err)
			}
			if env["ts"] == nil {
				t.Fatal("scenario event missing ts")
			}
			switch {
			case env["type"] == "trace" && env["event"] == "start":
				starts++
			case env["type"] == "trace" && env["event"] == "end":
				ends++
			case env["type"] == "job" && env["event"] == "complete":
				jobComplete = true
			}
		case <-timeout:
			t.Fatal("session never completed")
		}
	}
	if starts == 0 || starts != ends {
		t.Fatalf("unbalanced session: %d starts, %d ends", starts, ends)
	}
}
