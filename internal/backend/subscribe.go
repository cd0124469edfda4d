/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/investigation"
	"github.com/Seednode/yardbox/internal/reconciler"
)

const subscriptionBuffer = 16

// Subscribe opens the websocket change feed for table within code.
func (c *Client) Subscribe(ctx context.Context, code string, table feed.Table) (reconciler.Subscription, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.base.Path + investigationPath(code, "/feed")
	u.RawQuery = url.Values{"table": {string(table)}}.Encode()

	header := http.Header{}
	if token := c.bearer(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, investigation.Remote(fmt.Errorf("open change feed: %w", err))
	}

	s := &wsSubscription{
		conn:   conn,
		events: make(chan feed.Event, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go s.readPump()

	c.logger.Debug("change feed opened", "code", code, "table", table)

	return s, nil
}

type wsSubscription struct {
	conn   *websocket.Conn
	events chan feed.Event
	done   chan struct{}
	once   sync.Once
}

func (s *wsSubscription) Events() <-chan feed.Event {
	return s.events
}

func (s *wsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *wsSubscription) readPump() {
	defer close(s.events)
	defer s.conn.Close()

	for {
		var ev feed.Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			return
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
