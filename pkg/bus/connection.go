package bus

import (
	"errors"
	"sync"
)

var (
	ErrQueueFull        = errors.New("outbound queue full")
	ErrConnectionClosed = errors.New("connection closed")
	ErrNoConnection     = errors.New("no connection")
)

// Connection directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Link is the transport side of a connection. WriteMessage is only ever
// called from the connection's writer goroutine.
type Link interface {
	WriteMessage(data []byte) error
	Close() error
}

// ConnectionInfo describes a live connection.
type ConnectionInfo struct {
	ClientID  string `json:"clientId"`
	Type      string `json:"type"`
	Encoding  string `json:"encoding"`
	Direction string `json:"direction"`
	URL       string `json:"url,omitempty"`
	Created   int64  `json:"ts"`
}

// Connection owns a link, a bounded outbound queue and the goroutine that
// drains it.
type Connection struct {
	info ConnectionInfo
	link Link

	queue chan []byte
	done  chan struct{}

	closeOnce    sync.Once
	closeErr     error
	onWriteError func(err error)
}

func newConnection(info ConnectionInfo, link Link, queueSize int, onWriteError func(error)) *Connection {
	c := &Connection{
		info:         info,
		link:         link,
		queue:        make(chan []byte, queueSize),
		done:         make(chan struct{}),
		onWriteError: onWriteError,
	}
	go c.writeLoop()
	return c
}

// Info returns the connection descriptor.
func (c *Connection) Info() ConnectionInfo { return c.info }

// ClientID returns the connection's client id.
func (c *Connection) ClientID() string { return c.info.ClientID }

// Send queues a frame without blocking.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.queue <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrQueueFull
	}
}

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Close stops the writer and closes the link. Queued frames are dropped.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.link.Close()
	})
	return c.closeErr
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			if err := c.link.WriteMessage(data); err != nil && c.onWriteError != nil {
				c.onWriteError(err)
			}
		}
	}
}
