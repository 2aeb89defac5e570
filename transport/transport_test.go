package transport

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"vactor/client"
	"vactor/message"
	"vactor/runtime"
	"vactor/testkit"
)

type counterData struct {
	Value int `json:"value"`
}

type counterActor struct {
	id    message.ActorID
	value int
	probe *testkit.Probe
}

func (a *counterActor) OnActivate(ac *runtime.ActivationContext) error {
	if a.probe != nil {
		a.probe.Record(testkit.Event{Kind: testkit.Activated, Actor: ac.ActorID()})
		ac.RegisterReminder("refresh", func(ctx context.Context, data []byte) error {
			a.probe.Record(testkit.Event{Kind: testkit.Reminder, Actor: a.id, Name: "refresh", Payload: string(data)})
			return nil
		})
		ac.RegisterTimer("tick", func(ctx context.Context) error {
			a.probe.Record(testkit.Event{Kind: testkit.Timer, Actor: a.id, Name: "tick"})
			return nil
		})
	}
	return nil
}

func (a *counterActor) OnDeactivate(ctx context.Context) error {
	if a.probe != nil {
		a.probe.Record(testkit.Event{Kind: testkit.Deactivated, Actor: a.id})
	}
	return nil
}

func counterHost(t *testing.T, probe *testkit.Probe) *runtime.Host {
	t.Helper()
	h := runtime.NewHost()
	err := h.RegisterActor("CounterActor", runtime.Options{
		Factory: func(id message.ActorID) (runtime.Actor, error) {
			return &counterActor{id: id, probe: probe}, nil
		},
		Methods: []runtime.MethodSpec{
			{
				InterfaceID: 1, MethodID: 1, Name: "Add",
				Handler: func(ctx context.Context, a runtime.Actor, data []byte) (any, error) {
					var in counterData
					if err := json.Unmarshal(data, &in); err != nil {
						return nil, err
					}
					ca := a.(*counterActor)
					ca.value += in.Value
					return nil, nil
				},
			},
			{
				InterfaceID: 1, MethodID: 2, Name: "Get", WrappedResponse: true,
				Handler: func(ctx context.Context, a runtime.Actor, data []byte) (any, error) {
					return counterData{Value: a.(*counterActor).value}, nil
				},
			},
			{
				InterfaceID: 1, MethodID: 3, Name: "Fail",
				Handler: func(ctx context.Context, a runtime.Actor, data []byte) (any, error) {
					return nil, errors.New("counter exploded")
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return h
}

func startServer(t *testing.T, h *runtime.Host) (*Server, *Client) {
	t.Helper()
	srv, err := NewServer(h, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	t.Cleanup(srv.Stop)
	c := NewClient(srv.Addr())
	t.Cleanup(func() { _ = c.Close() })
	return srv, c
}

func TestRemotingEndToEnd(t *testing.T) {
	h := counterHost(t, nil)
	_, c := startServer(t, h)

	p := client.New("CounterActor", "abc")
	if err := p.InitRemoting(client.RemotingOptions{Client: c}); err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, err := p.CreateRequestBody("Add", message.NamedValue{Name: "amount", Value: counterData{Value: 5}})
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	resp, err := p.InvokeRemoting(ctx, 1, 1, "Add", body)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if resp != nil {
		t.Fatalf("void call returned body: %#v", resp)
	}

	resp, err = p.InvokeRemoting(ctx, 1, 2, "Get", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !resp.IsWrapped() {
		t.Fatalf("Get should arrive wrapped")
	}
	var out counterData
	if err := p.ContinueWithResult(1, 2, resp, &out); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if out.Value != 5 {
		t.Fatalf("counter value: %d", out.Value)
	}
}

func TestRemotingErrorKinds(t *testing.T) {
	h := counterHost(t, nil)
	_, c := startServer(t, h)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	invoke := func(actorType message.ActorType, methodID int32, methodName string) *message.RemoteError {
		t.Helper()
		p := client.New(actorType, "abc")
		if err := p.InitRemoting(client.RemotingOptions{Client: c}); err != nil {
			t.Fatalf("init: %v", err)
		}
		_, err := p.InvokeRemoting(ctx, 1, methodID, methodName, nil)
		var ie *client.InvocationError
		if !errors.As(err, &ie) || ie.Remote == nil {
			t.Fatalf("expected InvocationError, got %v", err)
		}
		return ie.Remote
	}

	if re := invoke("GhostActor", 1, "Add"); re.Kind != "not_registered" {
		t.Fatalf("unknown type kind: %#v", re)
	}
	if re := invoke("CounterActor", 99, "Nope"); re.Kind != "method_not_found" {
		t.Fatalf("unknown method kind: %#v", re)
	}
	if re := invoke("CounterActor", 3, "Fail"); re.Kind != "invocation" {
		t.Fatalf("user error kind: %#v", re)
	}
}

func TestLifecycleRPCs(t *testing.T) {
	probe := testkit.NewProbe(t, 0)
	h := counterHost(t, probe)
	_, c := startServer(t, h)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Activate(ctx, "CounterActor", "abc"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got := probe.Expect(time.Second); got != (testkit.Event{Kind: testkit.Activated, Actor: "abc"}) {
		t.Fatalf("activation event: %#v", got)
	}
	if err := c.FireReminder(ctx, "CounterActor", "abc", "refresh", []byte("r1")); err != nil {
		t.Fatalf("reminder: %v", err)
	}
	if got := probe.Expect(time.Second); got != (testkit.Event{Kind: testkit.Reminder, Actor: "abc", Name: "refresh", Payload: "r1"}) {
		t.Fatalf("reminder event: %#v", got)
	}
	if err := c.FireTimer(ctx, "CounterActor", "abc", "tick"); err != nil {
		t.Fatalf("timer: %v", err)
	}
	if got := probe.Expect(time.Second); got != (testkit.Event{Kind: testkit.Timer, Actor: "abc", Name: "tick"}) {
		t.Fatalf("timer event: %#v", got)
	}
	if err := c.FireTimer(ctx, "CounterActor", "abc", "nope"); err == nil {
		t.Fatalf("unknown timer should fail")
	}
	if err := c.Deactivate(ctx, "CounterActor", "abc"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got := probe.Expect(time.Second); got != (testkit.Event{Kind: testkit.Deactivated, Actor: "abc"}) {
		t.Fatalf("deactivation event: %#v", got)
	}
	if err := c.Activate(ctx, "GhostActor", "abc"); err == nil {
		t.Fatalf("unknown type should fail")
	}
}

func TestLoopbackNonRemoting(t *testing.T) {
	h := counterHost(t, nil)
	p := client.New("CounterActor", "abc")
	if err := p.InitNonRemoting(client.NonRemotingOptions{Client: NewLoopback(h)}); err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx := context.Background()
	if err := p.InvokeNonRemoting(ctx, "Add", counterData{Value: 3}, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	var out counterData
	if err := p.InvokeNonRemoting(ctx, "Get", nil, &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Value != 3 {
		t.Fatalf("counter value: %d", out.Value)
	}
	if err := p.InvokeNonRemoting(ctx, "Fail", nil, nil); err == nil {
		t.Fatalf("user error should surface")
	} else {
		var ie *client.InvocationError
		if !errors.As(err, &ie) {
			t.Fatalf("expected InvocationError, got %v", err)
		}
		if ie.Remote == nil || !strings.Contains(ie.Remote.Message, "counter exploded") {
			t.Fatalf("cause lost: %#v", ie.Remote)
		}
		if !strings.Contains(err.Error(), "counter exploded") {
			t.Fatalf("error text lost the cause: %v", err)
		}
	}

	ghost := client.New("GhostActor", "abc")
	if err := ghost.InitNonRemoting(client.NonRemotingOptions{Client: NewLoopback(h)}); err != nil {
		t.Fatalf("init ghost: %v", err)
	}
	if err := ghost.InvokeNonRemoting(ctx, "Add", nil, nil); !errors.Is(err, runtime.ErrNotRegistered) {
		t.Fatalf("unknown type: %v", err)
	}
}
