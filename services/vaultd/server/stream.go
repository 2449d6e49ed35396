package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"intentvault/services/vaultd/archive"
)

const wsWriteTimeout = 10 * time.Second

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	after, err := parseUintQuery(r, "after")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := parseUintQuery(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.archive.List(r.Context(), after, strings.TrimSpace(r.URL.Query().Get("type")), int(limit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var next uint64
	if n := len(entries); n > 0 {
		next = entries[n-1].Sequence
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries, "next": next})
}

// handleEventStream replays archived events after the optional cursor and then
// follows live commits over a websocket.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	after, err := parseUintQuery(r, "after")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, after); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, after uint64) error {
	ctx = conn.CloseRead(ctx)
	updates, cancel, backlog, err := s.archive.Subscribe(ctx, after)
	if err != nil {
		return err
	}
	defer cancel()

	for _, entry := range backlog {
		if err := writeEntry(ctx, conn, entry); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEntry(ctx, conn, entry); err != nil {
				return err
			}
		}
	}
}

func writeEntry(ctx context.Context, conn *websocket.Conn, entry archive.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
