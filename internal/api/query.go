package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"civiccite/internal/models"
	"civiccite/internal/util"
)

const (
	maxQueryBody       = 64 << 10
	headerReplay       = "Idempotent-Replay"
	replayKeySeparator = "|"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody))
	if err := dec.Decode(&req); err != nil {
		s.log.Debug("malformed query body", "error", err)
		writeErr(w, http.StatusBadRequest)
		return
	}

	key := replayKey(req)
	if key != "" && s.deps.Idempotency != nil {
		body, ok, err := s.deps.Idempotency.Get(r.Context(), key)
		if err != nil {
			s.log.Warn("idempotency lookup failed", "request_id", req.RequestID, "error", err)
		} else if ok {
			w.Header().Set(headerReplay, "true")
			writeRawJSON(w, http.StatusOK, body)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	a, err := s.deps.Engine.Answer(ctx, req)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			s.log.Error("query failed", "request_id", req.RequestID, "status", status, "error", err)
		}
		writeErr(w, status)
		return
	}

	body, err := json.Marshal(a)
	if err != nil {
		s.log.Error("encode answer failed", "request_id", a.RequestID, "error", err)
		writeErr(w, http.StatusInternalServerError)
		return
	}
	if key != "" && s.deps.Idempotency != nil {
		if err := s.deps.Idempotency.Put(context.WithoutCancel(r.Context()), key, body); err != nil {
			s.log.Warn("idempotency store failed", "request_id", req.RequestID, "error", err)
		}
	}
	writeRawJSON(w, http.StatusOK, body)
}

// replayKey scopes a client request id by channel so the same id sent on two
// channels does not replay the wrong shape.
func replayKey(req models.QueryRequest) string {
	id := strings.TrimSpace(req.RequestID)
	if id == "" {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(req.Channel)) + replayKeySeparator + id
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, util.ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrTransientBackend),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
