/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/investigation"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveFeed streams the row changes of one table of an investigation over a
// websocket. The connection closes when the hub drops or closes the
// subscription.
func (s *server) serveFeed() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := codeParam(p)

		table, err := feed.ParseTable(r.URL.Query().Get("table"))
		if err != nil {
			writeError(s.cfg, w, r, investigation.Validation("Unknown table %q.", r.URL.Query().Get("table")))
			return
		}

		if _, err := s.store.GetInvestigation(r.Context(), code); err != nil {
			writeError(s.cfg, w, r, err)
			return
		}

		sub, err := s.hub.Subscribe(code, table)
		if err != nil {
			writeError(s.cfg, w, r, investigation.Remote(err))
			return
		}
		defer sub.Close()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(s.cfg, "ERROR: Upgrading feed for %s from %s: %v", code, realIP(r), err)
			return
		}

		logf(s.cfg, "FEED: %s subscribed to %s/%s", realIP(r), code, table)

		done := make(chan struct{})
		go readPump(conn, done)

		writePump(conn, sub, done)

		logf(s.cfg, "FEED: %s left %s/%s", realIP(r), code, table)
	}
}

// readPump discards client messages and closes done once the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub *feed.Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
