package testkit

import (
	"testing"
	"time"
)

func TestProbeExpect(t *testing.T) {
	p := NewProbe(t, 0)
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Record(Event{Kind: Reminder, Actor: "abc", Name: "refresh", Payload: "r1"})
	}()
	want := Event{Kind: Reminder, Actor: "abc", Name: "refresh", Payload: "r1"}
	if got := p.Expect(time.Second); got != want {
		t.Fatalf("expect: %#v", got)
	}
	p.ExpectNoEvent(20 * time.Millisecond)
}

func TestProbeTimeoutReported(t *testing.T) {
	p := NewProbe(t, 0)
	var msg string
	p.fail = func(format string, args ...any) { msg = format }
	if ev := p.Expect(10 * time.Millisecond); ev != (Event{}) {
		t.Fatalf("event on timeout: %#v", ev)
	}
	if msg == "" {
		t.Fatalf("timeout not reported")
	}
	p.Record(Event{Kind: Timer, Actor: "abc", Name: "tick"})
	msg = ""
	p.ExpectNoEvent(10 * time.Millisecond)
	if msg == "" {
		t.Fatalf("pending event not reported")
	}
}
