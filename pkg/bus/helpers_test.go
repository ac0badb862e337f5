package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/morezero/servicebus/pkg/commsutil"
	"github.com/morezero/servicebus/pkg/message"
	"github.com/morezero/servicebus/pkg/service"
)

// recordLink keeps every frame written to it.
type recordLink struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (l *recordLink) WriteMessage(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, data)
	return nil
}

func (l *recordLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *recordLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *recordLink) messages(t *testing.T) []*message.Message {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*message.Message, 0, len(l.frames))
	for _, f := range l.frames {
		msg, err := commsutil.DecodeMessage(f)
		if err != nil {
			t.Fatalf("bus:helpers_test - undecodable frame %s: %v", f, err)
		}
		out = append(out, msg)
	}
	return out
}

// blockingLink blocks every write until released or closed.
type blockingLink struct {
	release   chan struct{}
	closeOnce sync.Once
}

func newBlockingLink() *blockingLink {
	return &blockingLink{release: make(chan struct{})}
}

func (l *blockingLink) WriteMessage([]byte) error {
	<-l.release
	return nil
}

func (l *blockingLink) Close() error {
	l.closeOnce.Do(func() { close(l.release) })
	return nil
}

// pipeLink hands every frame to a peer runtime as if it arrived on the
// peer's connection.
type pipeLink struct {
	mu       sync.Mutex
	peer     *Runtime
	peerConn *Connection
}

func (l *pipeLink) connect(peer *Runtime, conn *Connection) {
	l.mu.Lock()
	l.peer, l.peerConn = peer, conn
	l.mu.Unlock()
}

func (l *pipeLink) WriteMessage(data []byte) error {
	l.mu.Lock()
	peer, conn := l.peer, l.peerConn
	l.mu.Unlock()
	if peer != nil {
		peer.HandleFrame(conn, data)
	}
	return nil
}

func (l *pipeLink) Close() error { return nil }

// connectPair joins a and b with a pipe in each direction. a's connection
// is outbound, b's is inbound.
func connectPair(a, b *Runtime) (*Connection, *Connection) {
	la, lb := &pipeLink{}, &pipeLink{}
	ca := a.RegisterConnection(ConnectionInfo{ClientID: b.ID(), Type: "pipe", Encoding: "json", Direction: DirectionOutbound}, la)
	cb := b.RegisterConnection(ConnectionInfo{ClientID: a.ID(), Type: "pipe", Encoding: "json", Direction: DirectionInbound}, lb)
	la.connect(b, cb)
	lb.connect(a, ca)
	return ca, cb
}

// collector is a local service that records what it is sent.
type collector struct {
	*service.Service

	mu   sync.Mutex
	args []any
}

func newCollector(rt *Runtime, name, method string) *collector {
	c := &collector{Service: service.New(service.Options{Name: name, Host: rt})}
	c.Handle(method, func(args []any) (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.args = append(c.args, args...)
		return nil, nil
	})
	rt.RegisterService(c)
	c.StartService()
	return c
}

func (c *collector) received() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.args...)
}

// statuses subscribes a collector to rt's publishStatus.
func statuses(rt *Runtime) *collector {
	c := newCollector(rt, "watch", "onStatus")
	rt.AddListener(service.MethodPublishStatus, c.FullName(), "onStatus")
	return c
}

func statusKeys(c *collector) []string {
	var keys []string
	for _, a := range c.received() {
		if st, ok := a.(*service.Status); ok {
			keys = append(keys, st.Key)
		}
	}
	return keys
}

// newEcho registers a local service whose echo method returns its first
// argument.
func newEcho(rt *Runtime, name string) *service.Service {
	svc := service.New(service.Options{Name: name, TypeKey: "Echo", Host: rt})
	svc.Handle("echo", func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		return args[0], nil
	})
	rt.RegisterService(svc)
	svc.StartService()
	return svc
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("bus:helpers_test - timed out waiting for %s", what)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
