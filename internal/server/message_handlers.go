// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/matt-FFFFFF/fanout/internal/mailbox"
)

// SubjectsResponse lists subjects with live consumers.
type SubjectsResponse struct {
	Subjects []string `json:"subjects"`
}

// SetCurrentRequest selects a key. An empty key clears it.
type SetCurrentRequest struct {
	Current string `json:"current"`
}

func (s *Server) listSubjectsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, SubjectsResponse{Subjects: s.mailbox.Subjects()})
	}
}

// pollMessagesHandler drains the (subject, role) queue, waiting for a notification when it is
// empty. Without an explicit wait the poll waits for the server maximum.
func (s *Server) pollMessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wait, fromPrefer, hasWait, err := s.requestedWait(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if !hasWait {
			wait = s.maxWait
		}

		msgs := s.mailbox.Poll(r.Context(), r.PathValue("subject"), r.URL.Query().Get("role"), wait)

		applyPreference(w, wait, fromPrefer)
		writeJSON(w, http.StatusOK, msgs)
	}
}

func (s *Server) publishHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		target, n, err := mailbox.DecodePublishRequest(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.mailbox.Publish(r.PathValue("subject"), target, n)
		w.WriteHeader(http.StatusNoContent)
	}
}

// pollCurrentHandler reports the current key, first waiting for it to differ from
// ?current= when a wait is requested.
func (s *Server) pollCurrentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wait, fromPrefer, _, err := s.requestedWait(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		state := s.current.Poll(r.Context(), r.URL.Query().Get("current"), wait)

		applyPreference(w, wait, fromPrefer)
		writeJSON(w, http.StatusOK, state)
	}
}

func (s *Server) setCurrentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetCurrentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.current.Set(req.Current)

		key, _ := s.current.Get()
		writeJSON(w, http.StatusOK, SetCurrentRequest{Current: key})
	}
}

func (s *Server) clearCurrentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.current.Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}
