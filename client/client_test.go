package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"vactor/message"
)

type stubRemoting struct {
	last *message.RequestMessage
	resp *message.ResponseMessage
	err  error
}

func (s *stubRemoting) Invoke(ctx context.Context, req *message.RequestMessage) (*message.ResponseMessage, error) {
	s.last = req
	return s.resp, s.err
}

type trackingReadCloser struct {
	io.Reader
	closed bool
}

func (t *trackingReadCloser) Close() error {
	t.closed = true
	return nil
}

type stubNonRemoting struct {
	lastMethod  string
	lastPayload []byte
	body        *trackingReadCloser
	err         error
}

func (s *stubNonRemoting) InvokeMethod(ctx context.Context, actorType message.ActorType, actorID message.ActorID, methodName string, payload []byte) (io.ReadCloser, error) {
	s.lastMethod = methodName
	s.lastPayload = payload
	if s.err != nil {
		return nil, s.err
	}
	return s.body, nil
}

func TestProxyUseBeforeInit(t *testing.T) {
	p := New("DemoActor", "abc")
	if _, err := p.InvokeRemoting(context.Background(), 1, 2, "SaveData", nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("remoting: %v", err)
	}
	if err := p.InvokeNonRemoting(context.Background(), "SaveData", nil, nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("non-remoting: %v", err)
	}
	if err := p.ContinueWithResult(1, 2, nil, nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("continue: %v", err)
	}
	if _, err := p.CreateRequestBody("SaveData"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("create body: %v", err)
	}
}

func TestProxyInitIsOneShot(t *testing.T) {
	p := New("DemoActor", "abc")
	if err := p.InitRemoting(RemotingOptions{Client: &stubRemoting{}}); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := p.InitRemoting(RemotingOptions{Client: &stubRemoting{}}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second remoting init: %v", err)
	}
	if err := p.InitNonRemoting(NonRemotingOptions{Client: &stubNonRemoting{}}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("cross init: %v", err)
	}
	if err := p.InvokeNonRemoting(context.Background(), "SaveData", nil, nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("wrong surface: %v", err)
	}
}

func TestInvokeRemotingHeaderAndResult(t *testing.T) {
	s := message.JSONSerializer{}
	data, _ := s.Marshal("pong")
	stub := &stubRemoting{resp: &message.ResponseMessage{
		Header: message.ResponseHeader{ActorID: "abc", ActorType: "DemoActor"},
		Body:   message.NewPlainResponse(data),
	}}
	p := New("DemoActor", "abc")
	if err := p.InitRemoting(RemotingOptions{Client: stub}); err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx := message.WithCallContext(context.Background(), "cc-7")
	body, err := p.InvokeRemoting(ctx, 1, 2, "Ping", []byte(`"ping"`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	hdr := stub.last.Header
	if hdr.ActorID != "abc" || hdr.ActorType != "DemoActor" || hdr.InterfaceID != 1 || hdr.MethodID != 2 || hdr.MethodName != "Ping" {
		t.Fatalf("header: %#v", hdr)
	}
	if hdr.CallContext != "cc-7" {
		t.Fatalf("call context: %q", hdr.CallContext)
	}
	var out string
	if err := p.ContinueWithResult(1, 2, body, &out); err != nil || out != "pong" {
		t.Fatalf("result: %q %v", out, err)
	}
}

func TestInvokeRemotingEmptyBody(t *testing.T) {
	stub := &stubRemoting{resp: &message.ResponseMessage{}}
	p := New("DemoActor", "abc")
	if err := p.InitRemoting(RemotingOptions{Client: stub}); err != nil {
		t.Fatalf("init: %v", err)
	}
	body, err := p.InvokeRemoting(context.Background(), 1, 3, "Fire", nil)
	if err != nil || body != nil {
		t.Fatalf("empty body: %v %v", body, err)
	}
	if err := p.ContinueWithResult(1, 3, body, nil); err != nil {
		t.Fatalf("void continue: %v", err)
	}
}

func TestInvokeRemotingRemoteError(t *testing.T) {
	stub := &stubRemoting{resp: &message.ResponseMessage{
		Body: message.NewErrorResponse(&message.RemoteError{Kind: "invocation", Message: "boom", RemoteType: "*errors.errorString"}),
	}}
	p := New("DemoActor", "abc")
	if err := p.InitRemoting(RemotingOptions{Client: stub}); err != nil {
		t.Fatalf("init: %v", err)
	}
	_, err := p.InvokeRemoting(context.Background(), 1, 2, "SaveData", nil)
	var ie *InvocationError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvocationError, got %v", err)
	}
	if ie.Method != "SaveData" || ie.Remote == nil || ie.Remote.Message != "boom" {
		t.Fatalf("invocation error: %#v", ie)
	}
	var re *message.RemoteError
	if !errors.As(err, &re) || re.Kind != "invocation" {
		t.Fatalf("remote error unwrap: %v", err)
	}
}

func TestInvokeRemotingTransportErrorPassthrough(t *testing.T) {
	sentinel := errors.New("connection refused")
	stub := &stubRemoting{err: sentinel}
	p := New("DemoActor", "abc")
	if err := p.InitRemoting(RemotingOptions{Client: stub}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := p.InvokeRemoting(context.Background(), 1, 2, "SaveData", nil); !errors.Is(err, sentinel) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestInvokeRemotingCanceledContext(t *testing.T) {
	stub := &stubRemoting{}
	p := New("DemoActor", "abc")
	if err := p.InitRemoting(RemotingOptions{Client: stub}); err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.InvokeRemoting(ctx, 1, 2, "SaveData", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if stub.last != nil {
		t.Fatalf("transport should not be reached")
	}
}

func TestContinueWithResultWrapped(t *testing.T) {
	s := message.JSONSerializer{}
	inner, _ := s.Marshal(map[string]string{"PropertyA": "x"})
	outer, err := message.Wrap(s, inner)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	p := New("DemoActor", "abc")
	if err := p.InitRemoting(RemotingOptions{Client: &stubRemoting{}}); err != nil {
		t.Fatalf("init: %v", err)
	}
	var out map[string]string
	if err := p.ContinueWithResult(1, 2, message.NewWrappedResponse(outer), &out); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if out["PropertyA"] != "x" {
		t.Fatalf("unwrapped: %#v", out)
	}
}

func TestContinueWithResultCustomResolver(t *testing.T) {
	s := message.JSONSerializer{}
	inner, _ := s.Marshal("original")
	outer, _ := message.Wrap(s, inner)
	resolvers := NewResolverRegistry()
	resolvers.Register(1, 2, func(ser message.Serializer, data []byte, out any) error {
		var v string
		if err := message.Unwrap(ser, data, &v); err != nil {
			return err
		}
		*out.(*string) = "resolved:" + v
		return nil
	})
	p := New("DemoActor", "abc")
	if err := p.InitRemoting(RemotingOptions{Client: &stubRemoting{}, Resolvers: resolvers}); err != nil {
		t.Fatalf("init: %v", err)
	}
	var out string
	if err := p.ContinueWithResult(1, 2, message.NewWrappedResponse(outer), &out); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if out != "resolved:original" {
		t.Fatalf("resolver not applied: %q", out)
	}
	var fallback string
	if err := p.ContinueWithResult(9, 9, message.NewWrappedResponse(outer), &fallback); err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if fallback != "original" {
		t.Fatalf("fallback unwrap: %q", fallback)
	}
}

func TestCreateRequestBody(t *testing.T) {
	p := New("DemoActor", "abc")
	if err := p.InitRemoting(RemotingOptions{Client: &stubRemoting{}}); err != nil {
		t.Fatalf("init: %v", err)
	}
	b, err := p.CreateRequestBody("SaveData", message.NamedValue{Name: "data", Value: map[string]string{"PropertyA": "x"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(string(b), `"PropertyA":"x"`) {
		t.Fatalf("body: %s", b)
	}
}

func TestInvokeNonRemotingRoundTrip(t *testing.T) {
	stream := &trackingReadCloser{Reader: bytes.NewReader([]byte(`{"PropertyA":"x"}`))}
	stub := &stubNonRemoting{body: stream}
	p := New("DemoActor", "abc")
	if err := p.InitNonRemoting(NonRemotingOptions{Client: stub}); err != nil {
		t.Fatalf("init: %v", err)
	}
	in := map[string]string{"PropertyA": "x"}
	var out struct {
		PropertyA string
	}
	if err := p.InvokeNonRemoting(context.Background(), "SaveData", in, &out); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.PropertyA != "x" {
		t.Fatalf("response: %#v", out)
	}
	if stub.lastMethod != "SaveData" || !strings.Contains(string(stub.lastPayload), `"PropertyA":"x"`) {
		t.Fatalf("request: %s %s", stub.lastMethod, stub.lastPayload)
	}
	if !stream.closed {
		t.Fatalf("stream not closed")
	}
}

func TestInvokeNonRemotingDiscardsWhenOutNil(t *testing.T) {
	stream := &trackingReadCloser{Reader: bytes.NewReader([]byte(`{"ignored":true}`))}
	stub := &stubNonRemoting{body: stream}
	p := New("DemoActor", "abc")
	if err := p.InitNonRemoting(NonRemotingOptions{Client: stub}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := p.InvokeNonRemoting(context.Background(), "Fire", nil, nil); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if stub.lastPayload != nil {
		t.Fatalf("payload should be nil: %s", stub.lastPayload)
	}
	if !stream.closed {
		t.Fatalf("stream not closed")
	}
}

func TestBreakerFastFail(t *testing.T) {
	sentinel := errors.New("down")
	stub := &stubRemoting{err: sentinel}
	p := New("DemoActor", "abc")
	err := p.InitRemoting(RemotingOptions{
		Client:   stub,
		Breakers: NewTargetBreakers(1, time.Hour),
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := p.InvokeRemoting(context.Background(), 1, 2, "SaveData", nil); !errors.Is(err, sentinel) {
		t.Fatalf("first call: %v", err)
	}
	stub.last = nil
	if _, err := p.InvokeRemoting(context.Background(), 1, 2, "SaveData", nil); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second call: %v", err)
	}
	if stub.last != nil {
		t.Fatalf("transport should not be reached while open")
	}
}

func TestTargetBreakersSharedPerTarget(t *testing.T) {
	sentinel := errors.New("down")
	stub := &stubRemoting{err: sentinel}
	group := NewTargetBreakers(1, time.Hour)

	p1 := New("DemoActor", "abc")
	if err := p1.InitRemoting(RemotingOptions{Client: stub, Breakers: group}); err != nil {
		t.Fatalf("init p1: %v", err)
	}
	if _, err := p1.InvokeRemoting(context.Background(), 1, 2, "SaveData", nil); !errors.Is(err, sentinel) {
		t.Fatalf("p1 call: %v", err)
	}

	p2 := New("DemoActor", "abc")
	if err := p2.InitRemoting(RemotingOptions{Client: stub, Breakers: group}); err != nil {
		t.Fatalf("init p2: %v", err)
	}
	if _, err := p2.InvokeRemoting(context.Background(), 1, 2, "SaveData", nil); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("same target should share breaker state: %v", err)
	}

	p3 := New("DemoActor", "other")
	if err := p3.InitRemoting(RemotingOptions{Client: stub, Breakers: group}); err != nil {
		t.Fatalf("init p3: %v", err)
	}
	if _, err := p3.InvokeRemoting(context.Background(), 1, 2, "SaveData", nil); !errors.Is(err, sentinel) {
		t.Fatalf("different target should not be tripped: %v", err)
	}
	if group.For("DemoActor", "abc") != group.For("DemoActor", "abc") {
		t.Fatalf("For should return a stable breaker per target")
	}
}

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(2, 10*time.Millisecond)
	if !cb.Allow(now) {
		t.Fatalf("closed should allow")
	}
	cb.OnFailure(now)
	if !cb.Allow(now) {
		t.Fatalf("below threshold should allow")
	}
	cb.OnFailure(now)
	if cb.Allow(now) {
		t.Fatalf("open should reject")
	}
	later := now.Add(20 * time.Millisecond)
	if !cb.Allow(later) {
		t.Fatalf("half-open should allow one probe")
	}
	if cb.Allow(later) {
		t.Fatalf("half-open should allow only one probe")
	}
	cb.OnSuccess()
	if !cb.Allow(later) || !cb.Allow(later) {
		t.Fatalf("closed after success should allow")
	}
}

func TestTokenBucketAllowAndWait(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	if !tb.Allow(1) {
		t.Fatalf("first token should be available")
	}
	if tb.Allow(1) {
		t.Fatalf("bucket should be drained")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tb.WaitContext(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("wait: %v", err)
	}
	tb.SetQPS(0)
	if !tb.Allow(1) {
		t.Fatalf("disabled limiter should allow")
	}
}

func TestInvokeRemotingAsync(t *testing.T) {
	s := message.JSONSerializer{}
	data, _ := s.Marshal(7)
	stub := &stubRemoting{resp: &message.ResponseMessage{Body: message.NewPlainResponse(data)}}
	p := New("DemoActor", "abc")
	if err := p.InitRemoting(RemotingOptions{Client: stub}); err != nil {
		t.Fatalf("init: %v", err)
	}
	f := p.InvokeRemotingAsync(context.Background(), 1, 4, "Count", nil)
	res, ok := f.Await(time.Second)
	if !ok || res.Err != nil {
		t.Fatalf("await: %v %v", ok, res.Err)
	}
	var out int
	if err := p.ContinueWithResult(1, 4, res.Body, &out); err != nil || out != 7 {
		t.Fatalf("result: %d %v", out, err)
	}
}

func TestFutureThenAndCallbacks(t *testing.T) {
	f := newFuture[int]()
	doubled := Then(f, func(v int) int { return v * 2 })
	got := make(chan int, 1)
	f.OnComplete(func(v int) { got <- v })
	f.complete(21)
	f.complete(99)
	select {
	case v := <-got:
		if v != 21 {
			t.Fatalf("callback value: %d", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("callback not fired")
	}
	if v, ok := doubled.Await(time.Second); !ok || v != 42 {
		t.Fatalf("then: %d %v", v, ok)
	}
	if v, ok := f.Await(time.Second); !ok || v != 21 {
		t.Fatalf("await after done: %d %v", v, ok)
	}
	late := make(chan int, 1)
	f.OnComplete(func(v int) { late <- v })
	if v := <-late; v != 21 {
		t.Fatalf("late callback: %d", v)
	}
}
