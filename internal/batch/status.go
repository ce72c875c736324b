// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"fmt"
)

// Status is the lifecycle state of a single run.
type Status int

const (
	// StatusPending means the run has not been started yet.
	StatusPending Status = iota
	// StatusRunning means the run's process has been started.
	StatusRunning
	// StatusSucceeded means the process exited with code 0.
	StatusSucceeded
	// StatusFailed means the process could not be started, could not be waited for,
	// or exited non-zero.
	StatusFailed
	// StatusCancelled means the run was cancelled before it finished.
	StatusCancelled
)

// String implements the Stringer interface for Status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions can happen.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s < StatusPending || s > StatusCancelled {
		return nil, fmt.Errorf("invalid run status %d", int(s))
	}

	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	for v := StatusPending; v <= StatusCancelled; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}

	return fmt.Errorf("unknown run status %q", string(b))
}
