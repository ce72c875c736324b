// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/matt-FFFFFF/fanout/internal/batch"
)

// Watch streams snapshots of a batch over a websocket, calling fn for each one, until the
// server closes the stream because the batch is done or ctx is cancelled.
func (c *Client) Watch(ctx context.Context, id string, fn func(*batch.Response)) error {
	u := c.baseURL.JoinPath("batch", url.PathEscape(id), "watch")

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: err.Error()}
		}

		return err
	}
	defer conn.Close() //nolint:errcheck

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}

			return err
		}

		var snapshot batch.Response
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
		}

		fn(&snapshot)
	}
}
