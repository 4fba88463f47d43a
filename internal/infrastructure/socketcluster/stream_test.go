package socketcluster

import (
	"encoding/json"
	"testing"

	"mktstream/internal/application/port"
)

func TestStreamDropsWhenFull(t *testing.T) {
	st := newStream()
	for i := 0; i < streamBuffer; i++ {
		if !st.deliver(port.Message{Channel: "market.status"}) {
			t.Fatalf("delivery %d rejected before buffer was full", i)
		}
	}
	if st.deliver(port.Message{Channel: "market.status"}) {
		t.Fatal("expected delivery to a full stream to be dropped")
	}
	if got := st.dropped.Load(); got != 1 {
		t.Fatalf("dropped=%d, want 1", got)
	}

	st.close()
	if !st.deliver(port.Message{Channel: "market.status"}) {
		t.Fatal("delivery to a closed stream must be silently ignored")
	}
	st.close()
}

func TestRouteDoesNotStallOnSlowChannel(t *testing.T) {
	c := New(Options{Host: "127.0.0.1"})
	slow, fast := newStream(), newStream()
	c.streams["market.quote.SSI"] = slow
	c.streams["market.quote.VND"] = fast
	s := &session{id: "test"}

	for i := 0; i < streamBuffer+44; i++ {
		c.route(s, publishData{Channel: "market.quote.SSI", Data: json.RawMessage(`{}`)})
	}
	c.route(s, publishData{Channel: "market.quote.VND", Data: json.RawMessage(`{"s":"VND"}`)})

	if got := slow.dropped.Load(); got != 44 {
		t.Fatalf("slow channel dropped=%d, want 44", got)
	}
	select {
	case msg := <-fast.ch:
		if string(msg.Data) != `{"s":"VND"}` {
			t.Fatalf("data=%s", msg.Data)
		}
	default:
		t.Fatal("fast channel starved by slow channel")
	}
}
