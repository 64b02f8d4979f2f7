package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func drain(s *Subscription) []Frame {
	var out []Frame
	for {
		select {
		case f, ok := <-s.C:
			if !ok {
				return out
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func ofType(frames []Frame, typ string) []Frame {
	var out []Frame
	for _, f := range frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	s := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(s)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
	if _, ok := <-s.C; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestPublishStampsSequence(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	b.Publish(Event{Type: TypeDataUpdated, Data: map[string]string{"checksum": "abc"}})
	b.Publish(Event{Type: TypeDataUpdated, Data: map[string]string{"checksum": "def"}})

	for want := uint64(1); want <= 2; want++ {
		select {
		case f := <-s.C:
			if f.ID != want || f.Type != TypeDataUpdated {
				t.Errorf("frame = %+v, want id %d", f, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for frame")
		}
	}
}

func TestFrameWriteTo(t *testing.T) {
	var buf bytes.Buffer
	f := Frame{ID: 7, Event: Event{Type: TypeDataUpdated, Data: map[string]string{"origin": "disk"}}}
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	want := "id: 7\nevent: data.updated\ndata: {\"origin\":\"disk\"}\n\n"
	if buf.String() != want {
		t.Errorf("frame = %q, want %q", buf.String(), want)
	}

	bad := Frame{ID: 8, Event: Event{Type: "x", Data: make(chan int)}}
	if _, err := bad.WriteTo(&buf); err == nil {
		t.Error("expected encode error")
	}
}

func TestPublishKeyEvent_LeadingSnapshot(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	b.PublishKeyEvent("ht_habits")
	b.PublishKeyEvent("ht_records")
	time.Sleep(50 * time.Millisecond)

	frames := drain(s)
	if got := len(ofType(frames, TypeKeyUpdated)); got != 2 {
		t.Errorf("key events = %d, want 2", got)
	}
	snaps := ofType(frames, TypeSnapshotUpdated)
	if len(snaps) != 1 {
		t.Fatalf("snapshot events = %d, want 1 inside the throttle window", len(snaps))
	}
	if keys := snaps[0].Data.(map[string][]string)["keys"]; len(keys) != 1 || keys[0] != "ht_habits" {
		t.Errorf("leading snapshot keys = %v", keys)
	}
}

func TestPublishKeyEvent_TrailingSnapshotCarriesKeys(t *testing.T) {
	b := NewBroker(60 * time.Millisecond)
	defer b.Close()
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	b.PublishKeyEvent("ht_notes")
	b.PublishKeyEvent("ht_finance")
	b.PublishKeyEvent("ht_notes")
	b.PublishKeyEvent("ht_finance")
	time.Sleep(150 * time.Millisecond)

	snaps := ofType(drain(s), TypeSnapshotUpdated)
	if len(snaps) != 2 {
		t.Fatalf("snapshot events = %d, want leading + trailing", len(snaps))
	}
	keys := snaps[1].Data.(map[string][]string)["keys"]
	if strings.Join(keys, ",") != "ht_finance,ht_notes" {
		t.Errorf("trailing keys = %v, want [ht_finance ht_notes]", keys)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishKeyEvent("ht_finance")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "retry: 3000\n\n") {
		t.Errorf("missing retry hint: %q", body)
	}
	if !strings.Contains(body, "event: key.updated\ndata: {\"key\":\"ht_finance\"}") {
		t.Errorf("handler output missing key event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandler_Heartbeat(t *testing.T) {
	b := NewBroker(time.Second, WithHeartbeat(20*time.Millisecond))
	defer b.Close()

	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 256)
	var got strings.Builder
	for !strings.Contains(got.String(), ": ping") {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			t.Fatalf("no heartbeat before %v; read %q", err, got.String())
		}
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	for i := 0; i < clientBuffer+6; i++ {
		b.Publish(Event{Type: "test", Data: map[string]int{"i": i}})
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(drain(s)); got != clientBuffer {
		t.Errorf("buffered = %d, want %d", got, clientBuffer)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	s := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-s.C:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// No-ops after close.
	b.Publish(Event{Type: TypeDataUpdated})
	b.PublishKeyEvent("ht_notes")
	b.Close()
	if _, ok := <-b.Subscribe().C; ok {
		t.Error("subscription after close should be closed")
	}
}

func TestEventJSON(t *testing.T) {
	raw, err := json.Marshal(Event{Type: TypeKeyUpdated, Data: map[string]string{"key": "ht_notes"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"type":"key.updated","data":{"key":"ht_notes"}}` {
		t.Errorf("json = %s", raw)
	}
}
