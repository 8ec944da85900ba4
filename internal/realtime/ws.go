package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/websocket"
)

const defaultOrigin = "http://localhost/"

// WSDialer connects to the backend notification stream over a websocket, authenticating
// with the session token and subscribing to the notifications channel.
type WSDialer struct {
	URL    string
	Origin string
}

type subscribeFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

func (d WSDialer) Dial(ctx context.Context, token string) (Conn, error) {
	if strings.TrimSpace(d.URL) == "" {
		return nil, errors.New("realtime url is required")
	}
	origin := d.Origin
	if origin == "" {
		origin = defaultOrigin
	}
	config, err := websocket.NewConfig(d.URL, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	config.Header.Set("Authorization", "Bearer "+token)

	ws, err := config.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	if err := websocket.JSON.Send(ws, subscribeFrame{Type: "subscribe", Channel: "notifications"}); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Receive() ([]byte, error) {
	var msg []byte
	if err := websocket.Message.Receive(c.ws, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
