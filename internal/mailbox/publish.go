// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package mailbox

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedPublish is returned when a publish payload cannot be decoded.
	ErrMalformedPublish = errors.New("malformed publish request")
	// ErrMissingTarget is returned when a publish payload has no target.
	ErrMissingTarget = errors.New("target must not be empty")
	// ErrMissingMethod is returned when the notification has no method.
	ErrMissingMethod = errors.New("message.method must not be empty")
)

// PublishRequest is the wire form of a publish call.
type PublishRequest struct {
	Target  string       `json:"target"`
	Message Notification `json:"message"`
}

// DecodePublishRequest parses and validates a publish payload. A missing jsonrpc marker is
// filled in.
func DecodePublishRequest(data []byte) (Target, Notification, error) {
	var req PublishRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Target{}, Notification{}, fmt.Errorf("%w: %w", ErrMalformedPublish, err)
	}

	if req.Target == "" {
		return Target{}, Notification{}, ErrMissingTarget
	}

	if req.Message.Method == "" {
		return Target{}, Notification{}, ErrMissingMethod
	}

	if req.Message.JSONRPC == "" {
		req.Message.JSONRPC = JSONRPCVersion
	}

	return ParseTarget(req.Target), req.Message, nil
}
