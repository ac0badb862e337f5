package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/morezero/servicebus/pkg/message"
	"github.com/morezero/servicebus/pkg/service"
)

func TestConnection_SendNeverBlocks(t *testing.T) {
	link := newBlockingLink()
	conn := newConnection(ConnectionInfo{ClientID: "slow"}, link, 1, nil)
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		var last error
		for i := 0; i < 10; i++ {
			if err := conn.Send([]byte("frame")); err != nil {
				last = err
			}
		}
		done <- last
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("bus:connection_test - expected ErrQueueFull, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bus:connection_test - Send blocked on a stalled link")
	}
}

func TestConnection_SendAfterClose(t *testing.T) {
	link := &recordLink{}
	conn := newConnection(ConnectionInfo{ClientID: "c1"}, link, 4, nil)

	if err := conn.Close(); err != nil {
		t.Fatalf("bus:connection_test - close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("bus:connection_test - second close: %v", err)
	}
	if err := conn.Send([]byte("x")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("bus:connection_test - expected ErrConnectionClosed, got %v", err)
	}
	select {
	case <-conn.Done():
	default:
		t.Error("bus:connection_test - Done should be closed")
	}
	if !link.isClosed() {
		t.Error("bus:connection_test - link should be closed")
	}
}

func TestConnection_WritesInOrder(t *testing.T) {
	link := &recordLink{}
	conn := newConnection(ConnectionInfo{ClientID: "c1"}, link, 8, nil)
	defer conn.Close()

	for _, s := range []string{"a", "b", "c"} {
		if err := conn.Send([]byte(s)); err != nil {
			t.Fatal(err)
		}
	}
	eventually(t, "three writes", func() bool {
		link.mu.Lock()
		defer link.mu.Unlock()
		return len(link.frames) == 3
	})
	link.mu.Lock()
	defer link.mu.Unlock()
	if string(link.frames[0]) != "a" || string(link.frames[2]) != "c" {
		t.Errorf("bus:connection_test - frames out of order")
	}
}

func TestSendRemote_QueueFullIsDeliveryFailure(t *testing.T) {
	rt := New(Options{ID: "local", QueueSize: 1})
	watch := statuses(rt)
	link := newBlockingLink()
	rt.RegisterConnection(ConnectionInfo{ClientID: "slow"}, link)
	defer rt.Close()

	var failed error
	for i := 0; i < 10 && failed == nil; i++ {
		failed = rt.SendRemote(message.New("svc@slow", "m", i))
	}
	if !errors.Is(failed, ErrQueueFull) {
		t.Fatalf("bus:connection_test - expected ErrQueueFull, got %v", failed)
	}
	if keys := statusKeys(watch); len(keys) != 1 || keys[0] != service.KeyDeliveryFailure {
		t.Errorf("bus:connection_test - expected one DELIVERY_FAILURE, got %v", keys)
	}
}

func TestRegisterConnection_AddsRouteAndReplaces(t *testing.T) {
	rt := New(Options{ID: "local"})

	first := &recordLink{}
	rt.RegisterConnection(ConnectionInfo{ClientID: "peer", Type: "ws", Direction: DirectionInbound}, first)
	if entry := rt.RouteTable()["peer"]; entry.GatewayID != "peer" || entry.Gateway != rt.FullName() {
		t.Errorf("bus:connection_test - unexpected route %+v", entry)
	}

	second := &recordLink{}
	conn := rt.RegisterConnection(ConnectionInfo{ClientID: "peer"}, second)
	if !first.isClosed() {
		t.Error("bus:connection_test - replaced link should be closed")
	}
	if got, _ := rt.Connection("peer"); got != conn {
		t.Error("bus:connection_test - expected the new connection")
	}
	infos := rt.Connections()
	if len(infos) != 1 || infos[0].Created == 0 {
		t.Errorf("bus:connection_test - unexpected connections %+v", infos)
	}
}

func TestDisconnect_KeepsRoutesByDefault(t *testing.T) {
	rt := New(Options{ID: "local"})
	link := &recordLink{}
	rt.RegisterConnection(ConnectionInfo{ClientID: "c1"}, link)
	rt.AddRoute("far", "c1", rt.FullName())

	rt.OnDisconnect("c1")

	if _, ok := rt.Connection("c1"); ok {
		t.Error("bus:connection_test - connection should be removed")
	}
	if !link.isClosed() {
		t.Error("bus:connection_test - link should be closed")
	}
	if _, ok := rt.RouteTable()["far"]; !ok {
		t.Error("bus:connection_test - routes should be kept")
	}
	rt.OnDisconnect("c1")
}

func TestDisconnect_PrunesRoutes(t *testing.T) {
	rt := New(Options{ID: "local", PruneRoutesOnDisconnect: true})
	rt.RegisterConnection(ConnectionInfo{ClientID: "c1"}, &recordLink{})
	rt.RegisterConnection(ConnectionInfo{ClientID: "c2"}, &recordLink{})
	rt.AddRoute("far", "c1", rt.FullName())
	rt.AddRoute("near", "c2", rt.FullName())
	rt.SetDefaultRoute("c1")

	rt.OnDisconnect("c1")

	routes := rt.RouteTable()
	if _, ok := routes["far"]; ok {
		t.Error("bus:connection_test - route via c1 should be pruned")
	}
	if _, ok := routes["c1"]; ok {
		t.Error("bus:connection_test - route to c1 should be pruned")
	}
	if _, ok := routes["near"]; !ok {
		t.Error("bus:connection_test - route via c2 should be kept")
	}
	if _, ok := rt.DefaultRoute(); ok {
		t.Error("bus:connection_test - default route via c1 should be cleared")
	}
}

func TestDisconnectConnection_IgnoresReplaced(t *testing.T) {
	rt := New(Options{ID: "local"})
	old := rt.RegisterConnection(ConnectionInfo{ClientID: "c1"}, &recordLink{})
	current := rt.RegisterConnection(ConnectionInfo{ClientID: "c1"}, &recordLink{})

	rt.DisconnectConnection(old)

	if got, ok := rt.Connection("c1"); !ok || got != current {
		t.Error("bus:connection_test - the replacing connection must survive")
	}
}

func TestDeliver_Replies(t *testing.T) {
	rt := New(Options{ID: "local"})
	newEcho(rt, "echo")
	link := &recordLink{}
	conn := rt.RegisterConnection(ConnectionInfo{ClientID: "browser"}, link)

	// Request with msgId: reply due.
	req := message.New("echo", "echo", "pong")
	req.MsgID = "m1"
	req.Sender = "ui@browser"
	if got := rt.Deliver(conn, req); got != "pong" {
		t.Errorf("bus:connection_test - expected pong, got %v", got)
	}

	// Fire-and-forget from a named sender: no reply.
	ff := message.New("echo", "echo", "quiet")
	ff.Sender = "ui@browser"
	rt.Deliver(conn, ff)

	// A second request marks the end; the fire-and-forget left nothing.
	marker := message.New("echo", "echo", "marker")
	marker.MsgID = "m2"
	marker.Sender = "ui@browser"
	rt.Deliver(conn, marker)

	eventually(t, "two replies", func() bool { return len(link.messages(t)) >= 2 })
	replies := link.messages(t)
	if len(replies) != 2 {
		t.Fatalf("bus:connection_test - expected 2 replies, got %d", len(replies))
	}

	first := replies[0]
	if first.Type != message.TypeResponse || first.MsgID != "m1" || first.Name != "ui@browser" || first.Method != "onEcho" {
		t.Errorf("bus:connection_test - unexpected reply %+v", first)
	}
	if len(first.Data) != 1 || first.Data[0] != "pong" {
		t.Errorf("bus:connection_test - unexpected reply data %v", first.Data)
	}
	if replies[1].MsgID != "m2" || replies[1].Data[0] != "marker" {
		t.Errorf("bus:connection_test - unexpected second reply %+v", replies[1])
	}
}
