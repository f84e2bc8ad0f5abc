package pubsub

import (
	"testing"
)

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster[int]("test")
	a, cancelA := b.Subscribe(4)
	c, cancelC := b.Subscribe(4)
	defer cancelA()
	defer cancelC()

	b.Publish(7)

	if got := <-a; got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if got := <-c; got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

func TestBroadcasterDropsWhenBufferFull(t *testing.T) {
	b := NewBroadcaster[string]("test")
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish("first")
	b.Publish("second")

	if got := <-ch; got != "first" {
		t.Errorf("expected first, got %s", got)
	}
	select {
	case v := <-ch:
		t.Errorf("expected dropped value, got %s", v)
	default:
	}
}

func TestBroadcasterCancelAndClose(t *testing.T) {
	b := NewBroadcaster[int]("test")
	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected channel closed after cancel")
	}
	if b.Len() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.Len())
	}

	other, _ := b.Subscribe(1)
	b.Close()
	if _, ok := <-other; ok {
		t.Error("expected channel closed after Close")
	}
	b.Publish(1)

	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("expected subscribe after Close to return a closed channel")
	}
}
