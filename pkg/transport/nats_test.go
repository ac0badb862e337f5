package transport

import (
	"context"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/servicebus/pkg/bus"
	"github.com/morezero/servicebus/pkg/commsutil"
	"github.com/morezero/servicebus/pkg/message"
)

func startNats(t *testing.T) string {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("transport:nats_test - NATS server failed to start")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func newBridge(t *testing.T, url string, rt *bus.Runtime) *NatsBridge {
	t.Helper()
	nc, err := commsutil.Connect(url, rt.FullName())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	b := NewNatsBridge(rt, nc)
	require.NoError(t, b.Start())
	t.Cleanup(b.Close)
	return b
}

func TestNatsBridge_HandshakeAndRemoteCall(t *testing.T) {
	url := startNats(t)
	a := newRuntime(t, "a")
	b := newRuntime(t, "b")
	got := sink(t, b, "sink")

	bridgeA := newBridge(t, url, a)
	newBridge(t, url, b)

	conn, err := bridgeA.Connect("b")
	require.NoError(t, err)
	assert.Equal(t, TypeNats, conn.Info().Type)

	require.Eventually(t, hasService(a, "sink@b"), 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, hasService(b, "runtime@a"), 3*time.Second, 10*time.Millisecond)

	msg := message.New("sink@b", "onData", 42)
	msg.Sender = a.FullName()
	a.Route(msg)

	select {
	case v := <-got:
		assert.Equal(t, float64(42), v)
	case <-time.After(3 * time.Second):
		t.Fatal("transport:nats_test - remote call not delivered")
	}

	// b sees a as an inbound NATS connection.
	c, ok := b.Connection("a")
	require.True(t, ok)
	assert.Equal(t, bus.DirectionInbound, c.Info().Direction)
}

func TestNatsBridge_Call(t *testing.T) {
	url := startNats(t)
	a := newRuntime(t, "a")
	b := newRuntime(t, "b")

	bridgeA := newBridge(t, url, a)
	newBridge(t, url, b)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := bridgeA.Call(ctx, "b", message.New("runtime@b", "getId"))
	require.NoError(t, err)
	assert.Equal(t, message.TypeResponse, resp.Type)
	assert.Equal(t, "runtime@a", resp.Name)
	assert.Equal(t, []any{"b"}, resp.Data)

	// Failures still answer, with a nil result.
	resp, err = bridgeA.Call(ctx, "b", message.New("missing@b", "anything"))
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, resp.Data)

	// The caller is routable from b afterwards.
	_, ok := b.RouteTable()["a"]
	assert.True(t, ok)
}

func TestNatsBridge_CallTimesOutWithoutPeer(t *testing.T) {
	url := startNats(t)
	a := newRuntime(t, "a")
	bridgeA := newBridge(t, url, a)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := bridgeA.Call(ctx, "ghost", message.New("runtime@ghost", "getId"))
	assert.Error(t, err)
}

func TestNatsBridge_AnonymousFrames(t *testing.T) {
	url := startNats(t)
	b := newRuntime(t, "b")
	got := sink(t, b, "sink")
	newBridge(t, url, b)

	nc, err := comms.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	data, err := commsutil.EncodeMessage(message.New("sink", "onData", "plain"))
	require.NoError(t, err)
	require.NoError(t, nc.Publish(commsutil.BuildInboxSubject("b"), data))

	select {
	case v := <-got:
		assert.Equal(t, "plain", v)
	case <-time.After(3 * time.Second):
		t.Fatal("transport:nats_test - anonymous frame not delivered")
	}
	assert.Empty(t, b.Connections(), "frames without a runtime id open no connection")
}

func TestNatsBridge_ConnectToSelf(t *testing.T) {
	url := startNats(t)
	a := newRuntime(t, "a")
	bridgeA := newBridge(t, url, a)

	_, err := bridgeA.Connect("a")
	assert.Error(t, err)
}
