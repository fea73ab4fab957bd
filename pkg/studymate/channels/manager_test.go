package channels

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeChannel is an in-memory channel for manager tests.
type fakeChannel struct {
	name       string
	in         chan *IncomingMessage
	sent       []*OutgoingMessage
	connectErr error
	connected  bool
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{name: name, in: make(chan *IncomingMessage, 8)}
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeChannel) Disconnect() error {
	f.connected = false
	return nil
}

func (f *fakeChannel) Send(_ context.Context, _ string, msg *OutgoingMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Receive() <-chan *IncomingMessage { return f.in }
func (f *fakeChannel) IsConnected() bool                { return f.connected }
func (f *fakeChannel) Health() HealthStatus             { return HealthStatus{Connected: f.connected} }

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	if err := m.Register(newFakeChannel("whatsapp")); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(newFakeChannel("whatsapp")); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestStartAggregatesMessages(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	a := newFakeChannel("whatsapp")
	b := newFakeChannel("console")
	m.Register(a)
	m.Register(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	a.in <- &IncomingMessage{ID: "m1", Channel: "whatsapp"}
	b.in <- &IncomingMessage{ID: "m2", Channel: "console"}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-m.Messages():
			got[msg.ID] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for aggregated messages")
		}
	}
	if !got["m1"] || !got["m2"] {
		t.Errorf("aggregated = %v, want both m1 and m2", got)
	}
}

func TestStartFailsWhenNoChannelConnects(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	bad := newFakeChannel("whatsapp")
	bad.connectErr = errors.New("no network")
	m.Register(bad)

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start should fail when every channel fails to connect")
	}
}

func TestStartToleratesPartialConnectFailure(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	bad := newFakeChannel("whatsapp")
	bad.connectErr = errors.New("no network")
	good := newFakeChannel("console")
	m.Register(bad)
	m.Register(good)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("one healthy channel should be enough: %v", err)
	}
	if !good.IsConnected() {
		t.Error("healthy channel should be connected")
	}
}

func TestSendRoutesToNamedChannel(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	ch := newFakeChannel("whatsapp")
	m.Register(ch)

	msg := &OutgoingMessage{Content: "x = 5"}
	if err := m.Send(context.Background(), "whatsapp", "ali", msg); err != nil {
		t.Fatal(err)
	}
	if len(ch.sent) != 1 || ch.sent[0].Content != "x = 5" {
		t.Errorf("sent = %+v", ch.sent)
	}

	if err := m.Send(context.Background(), "telegram", "ali", msg); err == nil {
		t.Error("unknown channel should error")
	}
}
