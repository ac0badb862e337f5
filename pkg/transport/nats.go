package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/servicebus/pkg/bus"
	"github.com/morezero/servicebus/pkg/commsutil"
	"github.com/morezero/servicebus/pkg/message"
)

const natsLogPrefix = "transport:nats"

// HeaderRuntimeID carries the id of the publishing runtime on every frame.
const HeaderRuntimeID = "Bus-Runtime-Id"

// TypeNats is the connection type of NATS links.
const TypeNats = "nats"

// natsLink publishes frames to one peer's inbox subject.
type natsLink struct {
	nc      *comms.Conn
	subject string
	from    string
}

func (l *natsLink) WriteMessage(data []byte) error {
	msg := comms.NewMsg(l.subject)
	msg.Data = data
	msg.Header.Set(HeaderRuntimeID, l.from)
	return l.nc.PublishMsg(msg)
}

// The shared NATS connection outlives any one peer.
func (l *natsLink) Close() error { return nil }

// NatsBridge carries runtime traffic over NATS. Each peer runtime gets a
// connection whose client id is the peer id, so routes learned through
// the bridge point straight at the peer.
type NatsBridge struct {
	rt *bus.Runtime
	nc *comms.Conn

	mu    sync.Mutex
	subs  []*comms.Subscription
	peers map[string]*bus.Connection
}

// NewNatsBridge creates a bridge for rt over nc. Call Start to subscribe.
func NewNatsBridge(rt *bus.Runtime, nc *comms.Conn) *NatsBridge {
	return &NatsBridge{
		rt:    rt,
		nc:    nc,
		peers: make(map[string]*bus.Connection),
	}
}

// Start subscribes to the runtime's inbox and call subjects.
func (b *NatsBridge) Start() error {
	inbox := commsutil.BuildInboxSubject(b.rt.ID())
	call := commsutil.BuildCallSubject(b.rt.ID())

	inboxSub, err := b.nc.Subscribe(inbox, b.onInbox)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", natsLogPrefix, inbox, err)
	}
	callSub, err := b.nc.Subscribe(call, b.onCall)
	if err != nil {
		_ = inboxSub.Unsubscribe()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", natsLogPrefix, call, err)
	}
	if err := b.nc.Flush(); err != nil {
		return fmt.Errorf("%s - failed to flush subscriptions: %w", natsLogPrefix, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, inboxSub, callSub)
	b.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - Listening on %s and %s", natsLogPrefix, inbox, call))
	return nil
}

// Connect opens a connection to peerID and sends the handshake. The first
// peer becomes the default route when none is set.
func (b *NatsBridge) Connect(peerID string) (*bus.Connection, error) {
	if peerID == b.rt.ID() {
		return nil, fmt.Errorf("%s - refusing to connect %s to itself", natsLogPrefix, peerID)
	}
	conn := b.peer(peerID, bus.DirectionOutbound)

	if _, ok := b.rt.DefaultRoute(); !ok {
		b.rt.SetDefaultRoute(peerID)
	}
	if err := b.rt.Handshake(conn, peerID); err != nil {
		return nil, err
	}
	return conn, nil
}

// Call sends msg to the call subject of peerID and waits for the response
// message. An empty sender is set to this runtime.
func (b *NatsBridge) Call(ctx context.Context, peerID string, msg *message.Message) (*message.Message, error) {
	out := *msg
	if out.Sender == "" {
		out.Sender = b.rt.FullName()
	}
	data, err := commsutil.EncodeMessage(&out)
	if err != nil {
		return nil, err
	}

	req := comms.NewMsg(commsutil.BuildCallSubject(peerID))
	req.Data = data
	req.Header.Set(HeaderRuntimeID, b.rt.ID())

	resp, err := b.nc.RequestMsgWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s - call %s.%s on %s failed: %w", natsLogPrefix, msg.Name, msg.Method, peerID, err)
	}
	reply, err := commsutil.DecodeMessage(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid response from %s: %w", natsLogPrefix, peerID, err)
	}
	return reply, nil
}

// Close unsubscribes and disconnects every peer. The NATS connection is
// left open for its owner.
func (b *NatsBridge) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	peers := make([]*bus.Connection, 0, len(b.peers))
	for id, c := range b.peers {
		peers = append(peers, c)
		delete(b.peers, id)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			slog.Debug(fmt.Sprintf("%s - unsubscribe %s: %v", natsLogPrefix, s.Subject, err))
		}
	}
	for _, c := range peers {
		b.rt.DisconnectConnection(c)
	}
}

func (b *NatsBridge) onInbox(m *comms.Msg) {
	peerID := m.Header.Get(HeaderRuntimeID)
	if peerID == "" || peerID == b.rt.ID() {
		b.rt.HandleFrame(nil, m.Data)
		return
	}
	b.rt.HandleFrame(b.peer(peerID, bus.DirectionInbound), m.Data)
}

// onCall handles a request and always answers with a response message,
// carrying a nil result on failure.
func (b *NatsBridge) onCall(m *comms.Msg) {
	msg, err := commsutil.DecodeMessage(m.Data)
	if err != nil {
		b.rt.HandleFrame(nil, m.Data)
		return
	}

	clientID := ""
	if peerID := m.Header.Get(HeaderRuntimeID); peerID != "" && peerID != b.rt.ID() {
		clientID = b.peer(peerID, bus.DirectionInbound).ClientID()
	}

	result := b.rt.HandleMessage(msg, clientID)
	data, err := commsutil.EncodeMessage(message.NewResponse(msg, result))
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response to %s.%s: %v", natsLogPrefix, msg.Name, msg.Method, err))
		return
	}
	if err := m.Respond(data); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to respond to %s.%s: %v", natsLogPrefix, msg.Name, msg.Method, err))
	}
}

// peer returns the live connection to peerID, registering one if needed.
func (b *NatsBridge) peer(peerID, direction string) *bus.Connection {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.peers[peerID]; ok {
		if current, live := b.rt.Connection(peerID); live && current == c {
			return c
		}
	}
	c := b.rt.RegisterConnection(bus.ConnectionInfo{
		ClientID:  peerID,
		Type:      TypeNats,
		Encoding:  "json",
		Direction: direction,
		URL:       commsutil.BuildInboxSubject(peerID),
	}, &natsLink{nc: b.nc, subject: commsutil.BuildInboxSubject(peerID), from: b.rt.ID()})
	b.peers[peerID] = c
	return c
}
