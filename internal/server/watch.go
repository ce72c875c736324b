// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
)

const watchWriteTimeout = 10 * time.Second

// watchBatchHandler streams a snapshot over a websocket every time the batch changes. The
// server closes the stream normally once the batch is done.
func (s *Server) watchBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		if _, ok := s.batches.Get(id); !ok {
			writeError(w, http.StatusNotFound, batch.ErrBatchNotFound.Error())
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			ctxlog.Warn(r.Context(), "websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close() //nolint:errcheck

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// The client never sends anything; reading is how a disconnect is noticed.
		go func() {
			defer cancel()

			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		s.streamBatch(ctx, conn, id)
	}
}

func (s *Server) streamBatch(ctx context.Context, conn *websocket.Conn, id string) {
	sub := s.bus.Subscribe()

	var last []byte

	for {
		resp, ok := s.batches.Get(id)
		if !ok {
			closeWebsocket(conn, websocket.CloseNormalClosure, batch.ErrBatchNotFound.Error())
			return
		}

		data, err := json.Marshal(resp)
		if err != nil {
			closeWebsocket(conn, websocket.CloseInternalServerErr, err.Error())
			return
		}

		if !bytes.Equal(data, last) {
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				ctxlog.Debug(ctx, "watch client gone", "error", err)
				return
			}

			last = data
		}

		if resp.Done {
			closeWebsocket(conn, websocket.CloseNormalClosure, "done")
			return
		}

		if err := sub.Wait(ctx); err != nil {
			closeWebsocket(conn, websocket.CloseGoingAway, "shutting down")
			return
		}
	}
}

func closeWebsocket(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteTimeout))
}
