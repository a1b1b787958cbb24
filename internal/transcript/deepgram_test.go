package transcript

import (
	"encoding/json"
	"testing"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	"github.com/rs/zerolog"

	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/config"
)

func newTestForwarder(t *testing.T) *DeepgramForwarder {
	t.Helper()
	cfg := &config.Config{
		DeepgramAPIKey:             "test",
		DeepgramModel:              "nova-2",
		DeepgramLanguage:           "en-US",
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
	}
	d := NewDeepgramForwarder(cfg, zerolog.Nop())
	t.Cleanup(func() { d.cancel() })
	return d
}

func resultMessage(t *testing.T, text string, isFinal bool) *msginterfaces.MessageResponse {
	t.Helper()
	payload := map[string]interface{}{
		"type":     "Results",
		"is_final": isFinal,
		"channel": map[string]interface{}{
			"alternatives": []map[string]interface{}{
				{"transcript": text},
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	var msg msginterfaces.MessageResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	return &msg
}

func TestHandleMessageEmitsFinalEvent(t *testing.T) {
	d := newTestForwarder(t)

	d.handleMessage(resultMessage(t, "what is recursion", true))

	select {
	case ev := <-d.Events():
		if ev.Text != "what is recursion" || !ev.IsFinal {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
}

func TestHandleMessageEmitsInterimEvent(t *testing.T) {
	d := newTestForwarder(t)

	d.handleMessage(resultMessage(t, "what is recur", false))

	select {
	case ev := <-d.Events():
		if ev.Text != "what is recur" || ev.IsFinal {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
}

func TestHandleMessageIgnoresEmptyTranscript(t *testing.T) {
	d := newTestForwarder(t)

	d.handleMessage(resultMessage(t, "", true))
	d.handleMessage(&msginterfaces.MessageResponse{Type: "Metadata"})
	d.handleMessage(nil)

	select {
	case ev := <-d.Events():
		t.Errorf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleMessageAfterCloseDoesNotPanic(t *testing.T) {
	d := newTestForwarder(t)

	if err := d.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	// A straggler SDK callback after teardown must be dropped, never
	// crash the process.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("late transcript message panicked the forwarder: %v", r)
		}
	}()
	d.handleMessage(resultMessage(t, "straggler", true))
}

func TestHandleMessageDropsWhenChannelFull(t *testing.T) {
	d := newTestForwarder(t)

	// Fill the buffered channel, then one more. The extra event must be
	// dropped without blocking the callback.
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(d.events)+1; i++ {
			d.handleMessage(resultMessage(t, "overflow", false))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleMessage blocked on a full channel")
	}
}
