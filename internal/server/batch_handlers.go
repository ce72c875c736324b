// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
	"github.com/matt-FFFFFF/fanout/internal/longpoll"
)

func isValidationError(err error) bool {
	return errors.Is(err, batch.ErrEmptyCommand) ||
		errors.Is(err, batch.ErrEmptyRuns) ||
		errors.Is(err, batch.ErrInvalidRun) ||
		errors.Is(err, batch.ErrDuplicateKey)
}

func (s *Server) createBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batch.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		id, err := s.batches.Create(r.Context(), req)
		if err != nil {
			if isValidationError(err) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			ctxlog.Error(r.Context(), "failed to create batch", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())

			return
		}

		s.batches.Spawn(ctxlog.New(s.runCtx, ctxlog.Logger(r.Context())), id)

		resp, ok := s.batches.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, batch.ErrBatchNotFound.Error())
			return
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func (s *Server) listBatchesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.batches.List())
	}
}

// batchStatusHandler returns a snapshot. With ?completed=N and a wait it first long-polls until
// more than N runs are terminal, the batch disappears, or the wait runs out.
func (s *Server) batchStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		wait, fromPrefer, hasWait, err := s.requestedWait(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if hasWait && r.URL.Query().Has("completed") {
			seen, err := queryUint(r, "completed")
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			longpoll.WaitFor(r.Context(), s.bus, wait, func() bool {
				n, ok := s.batches.CompletedCount(id)
				return !ok || uint64(n) > seen
			})
		}

		if hasWait {
			applyPreference(w, wait, fromPrefer)
		}

		resp, ok := s.batches.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, batch.ErrBatchNotFound.Error())
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) cancelBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		if !s.batches.Cancel(r.Context(), id) {
			writeError(w, http.StatusNotFound, batch.ErrBatchNotFound.Error())
			return
		}

		resp, ok := s.batches.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, batch.ErrBatchNotFound.Error())
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) batchOutputHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := optionalUint(r, "run", 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		offset, err := optionalUint(r, "offset", 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		chunk, err := s.batches.ReadOutput(r.PathValue("id"), int(run), int64(offset)) //nolint:gosec
		switch {
		case errors.Is(err, batch.ErrBatchNotFound), errors.Is(err, batch.ErrRunNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, chunk)
		}
	}
}
