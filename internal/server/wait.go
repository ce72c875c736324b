// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/matt-FFFFFF/fanout/internal/longpoll"
)

// ErrInvalidQuery is returned for a query parameter that is not a non-negative integer.
var ErrInvalidQuery = errors.New("invalid query parameter")

// requestedWait reads the wait from a Prefer header, falling back to ?wait=<seconds>.
// The result is capped at the server maximum. ok is false when the client asked for no wait.
func (s *Server) requestedWait(r *http.Request) (wait time.Duration, fromPrefer bool, ok bool, err error) {
	if d, found := longpoll.ParsePreferWait(r.Header.Get("Prefer")); found {
		return min(d, s.maxWait), true, true, nil
	}

	if r.URL.Query().Has("wait") {
		secs, err := queryUint(r, "wait")
		if err != nil {
			return 0, false, false, err
		}

		return min(time.Duration(secs)*time.Second, s.maxWait), false, true, nil
	}

	return 0, false, false, nil
}

// applyPreference echoes the wait actually used, per RFC 7240.
func applyPreference(w http.ResponseWriter, wait time.Duration, fromPrefer bool) {
	if fromPrefer {
		w.Header().Set("Preference-Applied", fmt.Sprintf("wait=%d", int64(wait/time.Second)))
	}
}

func queryUint(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidQuery, name)
	}

	return v, nil
}

// optionalUint returns def when the parameter is absent.
func optionalUint(r *http.Request, name string, def uint64) (uint64, error) {
	if !r.URL.Query().Has(name) {
		return def, nil
	}

	return queryUint(r, name)
}
