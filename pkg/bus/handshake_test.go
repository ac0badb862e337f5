package bus

import (
	"testing"

	"github.com/morezero/servicebus/pkg/message"
	"github.com/morezero/servicebus/pkg/service"
)

func TestHandshake_ExchangesRegistries(t *testing.T) {
	a := New(Options{ID: "a"})
	b := New(Options{ID: "b"})
	newEcho(a, "clock")
	newEcho(b, "echo")

	ca, _ := connectPair(a, b)
	if err := a.Handshake(ca, b.ID()); err != nil {
		t.Fatalf("bus:handshake_test - handshake: %v", err)
	}

	// b learns a's services from register, a imports b's through onRegistry.
	eventually(t, "b to know clock@a", func() bool { return contains(b.GetServiceNames(), "clock@a") })
	eventually(t, "a to know echo@b", func() bool { return contains(a.GetServiceNames(), "echo@b") })
	if !contains(b.GetServiceNames(), "runtime@a") || !contains(a.GetServiceNames(), "runtime@b") {
		t.Error("bus:handshake_test - runtimes should know each other")
	}

	proxy, _ := a.GetService("echo@b")
	if proxy.TypeKey() != "Echo" {
		t.Errorf("bus:handshake_test - proxy lost its type: %s", proxy.TypeKey())
	}
	if contains(a.GetLocalServiceNames(), "echo@b") {
		t.Error("bus:handshake_test - a proxy is not local")
	}

	// b's runtime has a subscribed to getRegistry and released.
	nl := b.NotifyList()
	if len(nl[MethodGetRegistry]) != 1 || nl[MethodGetRegistry][0].CallbackName != "runtime@a" {
		t.Errorf("bus:handshake_test - unexpected notify list %+v", nl)
	}
	if len(nl[MethodReleased]) != 1 || nl[MethodReleased][0].CallbackMethod != MethodOnReleased {
		t.Errorf("bus:handshake_test - unexpected released listeners %+v", nl[MethodReleased])
	}
}

func TestHandshake_RemoteInvokeAndRelease(t *testing.T) {
	a := New(Options{ID: "a"})
	b := New(Options{ID: "b"})
	got := newCollector(b, "sink", "onThing")

	ca, _ := connectPair(a, b)
	if err := a.Handshake(ca, b.ID()); err != nil {
		t.Fatal(err)
	}
	eventually(t, "a to know sink@b", func() bool { return contains(a.GetServiceNames(), "sink@b") })

	msg := message.New("sink@b", "onThing", "hello")
	msg.Sender = a.FullName()
	a.Route(msg)
	eventually(t, "remote delivery", func() bool { return len(got.received()) == 1 })
	if got.received()[0] != "hello" {
		t.Errorf("bus:handshake_test - unexpected payload %v", got.received())
	}

	if err := b.ReleaseServiceByName("sink"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "a to drop sink@b", func() bool { return !contains(a.GetServiceNames(), "sink@b") })

	// Later registrations on b reach a through the getRegistry subscription.
	newEcho(b, "late")
	eventually(t, "a to know late@b", func() bool { return contains(a.GetServiceNames(), "late@b") })
}

func TestHandshake_BothDirectionsSettle(t *testing.T) {
	a := New(Options{ID: "a"})
	b := New(Options{ID: "b"})
	newEcho(a, "one")
	newEcho(b, "two")

	ca, cb := connectPair(a, b)
	if err := a.Handshake(ca, b.ID()); err != nil {
		t.Fatal(err)
	}
	if err := b.Handshake(cb, a.ID()); err != nil {
		t.Fatal(err)
	}

	eventually(t, "both registries", func() bool {
		return len(a.GetServiceNames()) == 4 && len(b.GetServiceNames()) == 4
	})

	svc, _ := b.GetService("one@a")
	if _, ok := svc.(*service.Service); !ok {
		t.Errorf("bus:handshake_test - expected a proxy service, got %T", svc)
	}
}

func TestHandshake_ClosedConnection(t *testing.T) {
	a := New(Options{ID: "a"})
	conn := a.RegisterConnection(ConnectionInfo{ClientID: "b"}, &recordLink{})
	_ = conn.Close()

	if err := a.Handshake(conn, "b"); err == nil {
		t.Error("bus:handshake_test - expected error on a closed connection")
	}
}

func TestHandshake_AddressesPeerRuntime(t *testing.T) {
	a := New(Options{ID: "a"})
	if a.FullName() != "runtime@a" {
		t.Fatalf("bus:handshake_test - FullName = %q, want runtime@a", a.FullName())
	}

	link := &recordLink{}
	conn := a.RegisterConnection(ConnectionInfo{ClientID: "b"}, link)
	if err := a.Handshake(conn, "b"); err != nil {
		t.Fatal(err)
	}

	eventually(t, "handshake frames", func() bool { return len(link.messages(t)) >= 5 })
	for _, msg := range link.messages(t) {
		if msg.Name != "runtime@b" || msg.Sender != "runtime@a" {
			t.Errorf("bus:handshake_test - %s sent to %q from %q", msg.Method, msg.Name, msg.Sender)
		}
	}
}

func TestBroadcastState_ReachesPeerSubscribers(t *testing.T) {
	a := New(Options{ID: "a"})
	b := New(Options{ID: "b"})
	sub := newCollector(b, "ui", "onState")
	b.AddListener(MethodOnBroadcastState, sub.FullName(), "onState")

	connectPair(a, b)
	st := a.BroadcastState()

	eventually(t, "state at b", func() bool { return len(sub.received()) == 1 })
	got, ok := sub.received()[0].(map[string]any)
	if !ok || got["fullname"] != st.FullName {
		t.Errorf("bus:handshake_test - peer subscriber got %v, want state of %s", sub.received()[0], st.FullName)
	}
}
