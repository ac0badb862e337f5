// Package transport connects runtimes: a WebSocket endpoint and dialer,
// and a NATS bridge. Both hand inbound frames to the runtime and give it a
// Link per peer to write to.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/morezero/servicebus/pkg/bus"
)

const wsLogPrefix = "transport:websocket"

// Paths served by a runtime.
const (
	MessagesPath = "/api/messages"
	IDPath       = "/api/v1/services/runtime/getId"
)

// TypeWebSocket is the connection type of WebSocket links.
const TypeWebSocket = "websocket"

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 16 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsLink writes frames to a WebSocket. Only the connection's writer
// goroutine calls WriteMessage; Close may race with it.
type wsLink struct {
	ws *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

func (l *wsLink) WriteMessage(data []byte) error {
	if err := l.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return l.ws.WriteMessage(websocket.TextMessage, data)
}

func (l *wsLink) Close() error {
	l.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = l.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		l.closeErr = l.ws.Close()
	})
	return l.closeErr
}

// Handler accepts WebSocket connections on MessagesPath. The client id
// comes from the id query parameter; anonymous clients get a UUID.
func Handler(rt *bus.Runtime) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("id")
		if clientID == "" {
			clientID = uuid.NewString()
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - upgrade failed for %s: %v", wsLogPrefix, clientID, err))
			return
		}

		conn := rt.RegisterConnection(bus.ConnectionInfo{
			ClientID:  clientID,
			Type:      TypeWebSocket,
			Encoding:  "json",
			Direction: bus.DirectionInbound,
			URL:       r.RemoteAddr,
		}, &wsLink{ws: ws})

		readLoop(rt, conn, ws)
	})
}

// IDHandler answers IDPath with the runtime id as a JSON string.
func IDHandler(rt *bus.Runtime) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rt.ID())
	})
}

// Dial connects rt to the runtime serving baseURL: it fetches the remote
// id, opens the WebSocket, registers the connection under that id and
// sends the handshake. The first dialed peer becomes the default route.
func Dial(ctx context.Context, rt *bus.Runtime, baseURL string) (*bus.Connection, error) {
	remoteID, err := fetchID(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	if remoteID == rt.ID() {
		return nil, fmt.Errorf("%s - refusing to connect %s to itself", wsLogPrefix, baseURL)
	}

	wsURL, err := messagesURL(baseURL, rt.ID())
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to dial %s: %w", wsLogPrefix, wsURL, err)
	}

	conn := rt.RegisterConnection(bus.ConnectionInfo{
		ClientID:  remoteID,
		Type:      TypeWebSocket,
		Encoding:  "json",
		Direction: bus.DirectionOutbound,
		URL:       wsURL,
	}, &wsLink{ws: ws})
	go readLoop(rt, conn, ws)

	if _, ok := rt.DefaultRoute(); !ok {
		rt.SetDefaultRoute(remoteID)
	}

	if err := rt.Handshake(conn, remoteID); err != nil {
		rt.DisconnectConnection(conn)
		return nil, err
	}
	slog.Info(fmt.Sprintf("%s - Connected to %s at %s", wsLogPrefix, remoteID, baseURL))
	return conn, nil
}

func readLoop(rt *bus.Runtime, conn *bus.Connection, ws *websocket.Conn) {
	defer rt.DisconnectConnection(conn)
	ws.SetReadLimit(maxMessageSize)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn(fmt.Sprintf("%s - read from %s failed: %v", wsLogPrefix, conn.ClientID(), err))
			}
			return
		}
		rt.HandleFrame(conn, data)
	}
}

func fetchID(ctx context.Context, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+IDPath, nil)
	if err != nil {
		return "", fmt.Errorf("%s - invalid url %s: %w", wsLogPrefix, baseURL, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s - failed to get id from %s: %w", wsLogPrefix, baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s - getId on %s returned %s", wsLogPrefix, baseURL, resp.Status)
	}
	var id string
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return "", fmt.Errorf("%s - invalid getId response from %s: %w", wsLogPrefix, baseURL, err)
	}
	if id == "" {
		return "", fmt.Errorf("%s - empty id from %s", wsLogPrefix, baseURL)
	}
	return id, nil
}

// messagesURL maps http(s)://host to ws(s)://host/api/messages?id=localID.
func messagesURL(baseURL, localID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("%s - invalid url %s: %w", wsLogPrefix, baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%s - unsupported scheme %q in %s", wsLogPrefix, u.Scheme, baseURL)
	}
	u.Path += MessagesPath
	u.RawQuery = url.Values{"id": {localID}}.Encode()
	return u.String(), nil
}
