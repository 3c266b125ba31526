package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/history"
	"github.com/starthub-run/runtime/pkg/logstream"
	"github.com/starthub-run/runtime/pkg/value"
)

// version is set via -ldflags at build time
var version = "dev"

// SetVersion sets the version string (called from main).
func SetVersion(v string) {
	version = v
}

// Response types

// HealthResponse is the response for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the response for /version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ErrorResponse is the standard error response. Code and Fields are
// populated from the runtime's *action.Error taxonomy (spec.md §7) when
// available, so callers can match on Code rather than parsing Message.
type ErrorResponse struct {
	Error  string         `json:"error"`
	Code   string         `json:"code,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// ExecuteRequest is the request body for POST /execute.
type ExecuteRequest struct {
	ActionRef string        `json:"action_ref"`
	Inputs    []value.Value `json:"inputs"`
}

// ExecuteResponse is the response body for POST /execute.
type ExecuteResponse struct {
	Outputs []value.Value `json:"outputs"`
}

// HistoryEntryResponse summarizes one persisted execution record.
type HistoryEntryResponse struct {
	ActionRef   string    `json:"action_ref"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: version,
		Service: "starthub-serve",
	})
}

// handleExecute resolves and runs ActionRef against Inputs via the core
// runtime's Execute entry point (spec.md §6), returning the root's
// positional output sequence.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Service.MaxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Service.MaxRequestSize)
	}
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ActionRef == "" {
		writeError(w, http.StatusBadRequest, "action_ref is required")
		return
	}

	started := time.Now()

	// Subscribe to the Log Channel for the duration of the call so the
	// records this execution publishes can be persisted alongside the
	// execution record itself (only worth the subscribe/drain cost when
	// there is somewhere to put the result).
	var logCh <-chan logstream.Record
	var unsubscribe func()
	if s.history != nil {
		logCh, unsubscribe = s.runtime.Log.Subscribe()
	}

	outputs, err := s.runtime.Execute(r.Context(), req.ActionRef, req.Inputs)

	var captured []logstream.Record
	if s.history != nil {
		captured = drainRecords(logCh)
		unsubscribe()
	}

	if err != nil {
		s.recordHistory(req, nil, started, err, captured)
		writeActionError(w, err)
		return
	}

	s.recordHistory(req, outputs, started, nil, captured)
	writeJSON(w, http.StatusOK, ExecuteResponse{Outputs: outputs})
}

// drainRecords returns every record already buffered on ch without
// blocking. Execute runs synchronously and every Log Channel publish it
// makes happens before it returns, so by the time the caller drains, the
// call's records are already sitting in ch's buffer. The buffer holds at
// most the channel's depth; when a call publishes more than that, the
// oldest records are dropped and are not returned here.
func drainRecords(ch <-chan logstream.Record) []logstream.Record {
	var out []logstream.Record
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, rec)
		default:
			return out
		}
	}
}

func (s *Server) recordHistory(req ExecuteRequest, outputs []value.Value, started time.Time, execErr error, logs []logstream.Record) {
	if s.history == nil {
		return
	}
	rec := history.ExecutionRecord{
		ActionRef:   req.ActionRef,
		Status:      "succeeded",
		StartedAt:   started,
		CompletedAt: time.Now(),
	}
	if inputsJSON, err := json.Marshal(req.Inputs); err == nil {
		rec.Inputs = inputsJSON
	}
	if execErr != nil {
		rec.Status = "failed"
		rec.Error = execErr.Error()
	} else if outputsJSON, err := json.Marshal(outputs); err == nil {
		rec.Outputs = outputsJSON
	}
	// History persistence is best-effort logging infrastructure, not part
	// of the execution contract; a write failure must not surface to the
	// caller as an execution failure.
	id, err := s.history.RecordExecution(rec)
	if err != nil {
		return
	}
	for _, logRec := range logs {
		_ = s.history.AppendLog(history.LogRecord{
			ExecutionID: id,
			Level:       string(logRec.Level),
			Message:     logRec.Message,
			Timestamp:   logRec.Timestamp,
		})
	}
}

// handleEvents streams the Log Channel to the caller as Server-Sent
// Events until the request context is cancelled (spec.md §9: the Log
// Channel is a broadcast stream with a bounded per-subscriber buffer).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, unsubscribe := s.runtime.Log.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case rec, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleListHistory returns every persisted execution record.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.Executions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]HistoryEntryResponse, len(records))
	for i, rec := range records {
		out[i] = HistoryEntryResponse{
			ActionRef:   rec.ActionRef,
			Status:      rec.Status,
			Error:       rec.Error,
			StartedAt:   rec.StartedAt,
			CompletedAt: rec.CompletedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHistoryLogs returns the archived log records for one execution id.
func (s *Server) handleHistoryLogs(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}
	logs, err := s.history.LogsForExecution(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// writeActionError maps the runtime's error taxonomy (spec.md §7) onto an
// HTTP status and a structured error body.
func writeActionError(w http.ResponseWriter, err error) {
	var actionErr *action.Error
	if !errors.As(err, &actionErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch actionErr.Code {
	case action.CodeManifestNotFound:
		status = http.StatusNotFound
	case action.CodeReferenceError, action.CodeTypeMismatch, action.CodeManifestMalformed,
		action.CodeArtifactMalformed, action.CodeCycleDetected:
		status = http.StatusBadRequest
	case action.CodeArtifactUnavail, action.CodeLeafUnavailable:
		status = http.StatusServiceUnavailable
	case action.CodeLeafFailed:
		status = http.StatusUnprocessableEntity
	case action.CodeCancelled:
		status = http.StatusRequestTimeout
	}

	writeJSON(w, status, ErrorResponse{
		Error:  actionErr.Message,
		Code:   string(actionErr.Code),
		Fields: actionErr.Fields,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
