package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// asyncReceive reads one message in the background. Call it before
// publishing; miniredis delivers synchronously.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{}
	}
}

func testEvent() Event {
	return Event{
		Type:   TypeButton,
		Time:   time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		Fields: map[string]string{"button": "CD1", "action": "play"},
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, nil); !errors.Is(err, ErrNoURL) {
		t.Errorf("New(no URL) = %v, want ErrNoURL", err)
	}
	if _, err := New(Config{URL: "://bad"}, nil); err == nil {
		t.Error("New(bad URL) = nil error")
	}
	if _, err := New(Config{URL: "redis://localhost:6379", Encoding: "xml"}, nil); err == nil {
		t.Error("New(xml) = nil error")
	}
	if _, err := New(Config{URL: "redis://localhost:6379", Retries: -1}, nil); err == nil {
		t.Error("New(retries -1) = nil error")
	}
}

func TestSend_JSON(t *testing.T) {
	mr := miniredis.RunT(t)
	p, err := New(Config{URL: "redis://" + mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = p.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := p.Send(context.Background(), testEvent()); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg := waitMessage(t, ch)
	var got Event
	if err := json.Unmarshal([]byte(msg.Message), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeButton || got.Fields["button"] != "CD1" {
		t.Errorf("got %+v", got)
	}
}

func TestSend_Msgpack(t *testing.T) {
	mr := miniredis.RunT(t)
	p, err := New(Config{URL: "redis://" + mr.Addr(), Channel: "car", Encoding: EncodingMsgpack}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = p.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe("car")
	ch := asyncReceive(sub)

	if err := p.Send(context.Background(), testEvent()); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg := waitMessage(t, ch)
	var got Event
	if err := msgpack.Unmarshal([]byte(msg.Message), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Fields["action"] != "play" {
		t.Errorf("got %+v", got)
	}
}

func TestRun_DeliversQueuedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	p, err := New(Config{URL: "redis://" + mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = p.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Publish(Event{Type: TypeState, Fields: map[string]string{"state": "PLAYING"}})

	msg := waitMessage(t, ch)
	var got Event
	if err := json.Unmarshal([]byte(msg.Message), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeState || got.Time.IsZero() {
		t.Errorf("got %+v, want state event with time set", got)
	}
}

func TestSend_FailsAfterRetries(t *testing.T) {
	mr := miniredis.RunT(t)
	p, err := New(Config{URL: "redis://" + mr.Addr(), Retries: 1, Timeout: 200 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = p.Close() }()

	mr.Close()
	if err := p.Send(context.Background(), testEvent()); err == nil {
		t.Error("send to closed server = nil error")
	}
}

func TestPublish_DropsWhenFull(t *testing.T) {
	p, err := New(Config{URL: "redis://localhost:6379"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < bufferSize+5; i++ {
		p.Publish(testEvent())
	}
	if got := p.Dropped(); got != 5 {
		t.Errorf("Dropped() = %d, want 5", got)
	}
}
