package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/parleyhq/parley/internal/backend"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second

	reconnectDelay = 2 * time.Second
)

// wsFrame is the wire shape of subscription traffic
type wsFrame struct {
	Type string                    `json:"type"`
	Args *backend.ListMessagesArgs `json:"args,omitempty"`
	Page *backend.MessagePage      `json:"page,omitempty"`
	Err  string                    `json:"error,omitempty"`
}

// ListMessages subscribes to a live list-messages query. The websocket is
// kept alive with ping/pong and re-dialed on read errors until ctx is
// cancelled; each server snapshot replaces the local cache view and is fanned
// out to subscribers, so optimistic patches are discarded naturally as
// authoritative data arrives.
func (c *Client) ListMessages(ctx context.Context, args backend.ListMessagesArgs) (<-chan backend.Snapshot, error) {
	ch := c.cache.subscribe(args)

	go func() {
		defer c.cache.unsubscribe(args, ch)
		for {
			if err := c.runSubscription(ctx, args); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("subscription dropped, reconnecting", "key", args.Key(), "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return ch, nil
}

// runSubscription dials the websocket, issues the subscribe frame, and pumps
// snapshots into the cache until the connection drops or ctx is cancelled.
func (c *Client) runSubscription(ctx context.Context, args backend.ListMessagesArgs) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsFrame{Type: "subscribe", Args: &args}); err != nil {
		return err
	}

	// Close the connection when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// Keepalive writer.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("unexpected websocket close", "key", args.Key(), "err", err)
			}
			return err
		}
		switch frame.Type {
		case "snapshot":
			if frame.Page != nil {
				c.cache.confirm(args.Key(), *frame.Page)
			}
		case "error":
			log.Warn("subscription error frame", "key", args.Key(), "err", frame.Err)
		}
	}
}
