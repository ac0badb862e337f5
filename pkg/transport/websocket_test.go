package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/servicebus/pkg/bus"
	"github.com/morezero/servicebus/pkg/message"
	"github.com/morezero/servicebus/pkg/service"
)

func newRuntime(t *testing.T, id string) *bus.Runtime {
	t.Helper()
	rt := bus.New(bus.Options{ID: id})
	t.Cleanup(rt.Close)
	return rt
}

// sink registers a service on rt that forwards its first argument to a
// channel.
func sink(t *testing.T, rt *bus.Runtime, name string) <-chan any {
	t.Helper()
	ch := make(chan any, 16)
	svc := service.New(service.Options{Name: name, Host: rt})
	svc.Handle("onData", func(args []any) (any, error) {
		if len(args) > 0 {
			ch <- args[0]
		}
		return nil, nil
	})
	rt.RegisterService(svc)
	svc.StartService()
	return ch
}

func newServer(t *testing.T, rt *bus.Runtime) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(MessagesPath, Handler(rt))
	mux.Handle(IDPath, IDHandler(rt))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func hasService(rt *bus.Runtime, fullname string) func() bool {
	return func() bool {
		_, ok := rt.Registry().GetService(fullname)
		return ok
	}
}

func TestDial_HandshakeAndRemoteCall(t *testing.T) {
	a := newRuntime(t, "a")
	b := newRuntime(t, "b")
	got := sink(t, b, "sink")
	srv := newServer(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, a, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "b", conn.ClientID())
	assert.Equal(t, bus.DirectionOutbound, conn.Info().Direction)

	def, ok := a.DefaultRoute()
	require.True(t, ok)
	assert.Equal(t, "b", def.GatewayID)

	require.Eventually(t, hasService(a, "sink@b"), 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, hasService(b, "runtime@a"), 3*time.Second, 10*time.Millisecond)

	msg := message.New("sink@b", "onData", "over the wire")
	msg.Sender = a.FullName()
	a.Route(msg)

	select {
	case v := <-got:
		assert.Equal(t, "over the wire", v)
	case <-time.After(3 * time.Second):
		t.Fatal("transport:websocket_test - remote call not delivered")
	}

	infos := b.Connections()
	require.Len(t, infos, 1)
	assert.Equal(t, "a", infos[0].ClientID)
	assert.Equal(t, TypeWebSocket, infos[0].Type)
}

func TestHandler_AnonymousClientGetsReplies(t *testing.T) {
	b := newRuntime(t, "b")
	srv := newServer(t, b)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + MessagesPath
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	req := message.New("runtime", "getId")
	req.MsgID = "req-1"
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)

	var reply message.Message
	require.NoError(t, json.Unmarshal(frame, &reply))
	assert.Equal(t, message.TypeResponse, reply.Type)
	assert.Equal(t, "req-1", reply.MsgID)
	assert.Equal(t, "onId", reply.Method)
	assert.Equal(t, []any{"b"}, reply.Data)

	// The anonymous client got a generated id.
	infos := b.Connections()
	require.Len(t, infos, 1)
	assert.NotEmpty(t, infos[0].ClientID)
	assert.Equal(t, bus.DirectionInbound, infos[0].Direction)
}

func TestHandler_DisconnectRemovesConnection(t *testing.T) {
	b := newRuntime(t, "b")
	srv := newServer(t, b)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + MessagesPath + "?id=ui"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { _, ok := b.Connection("ui"); return ok }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { _, ok := b.Connection("ui"); return !ok }, 3*time.Second, 10*time.Millisecond)

	// Routes are kept by default.
	_, ok := b.RouteTable()["ui"]
	assert.True(t, ok)
}

func TestDial_Errors(t *testing.T) {
	a := newRuntime(t, "a")
	srv := newServer(t, a)
	ctx := context.Background()

	_, err := Dial(ctx, a, srv.URL)
	assert.Error(t, err, "dialing itself must fail")

	bad := httptest.NewServer(http.NotFoundHandler())
	defer bad.Close()
	_, err = Dial(ctx, a, bad.URL)
	assert.Error(t, err)

	_, err = Dial(ctx, a, "ftp://example.com")
	assert.Error(t, err)
}

func TestMessagesURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"http://host:3001", "ws://host:3001/api/messages?id=me", false},
		{"https://host/", "wss://host/api/messages?id=me", false},
		{"ws://host/base", "ws://host/base/api/messages?id=me", false},
		{"ftp://host", "", true},
	}
	for _, tt := range tests {
		got, err := messagesURL(tt.in, "me")
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
