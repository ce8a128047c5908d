package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/leapstack-labs/retailsql/pkg/core"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error       string   `json:"error"`
	Kind        string   `json:"kind"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Available   []string `json:"available,omitempty"`
	RequestID   string   `json:"request_id,omitempty"`
}

// badRequestError is a malformed request: bad JSON, bad timestamps.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// classify maps an error onto an HTTP status and a stable kind string.
func classify(err error) (int, string) {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, core.ErrMissingParameter):
		return http.StatusBadRequest, "missing_parameter"
	case errors.Is(err, core.ErrUnsupportedParameterType):
		return http.StatusBadRequest, "unsupported_parameter_type"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, core.ErrExecution):
		return http.StatusBadGateway, "execution"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	resp := errorResponse{Error: err.Error(), Kind: kind, RequestID: RequestID(r.Context())}

	var (
		notFound *core.NotFoundError
		timeout  *core.TimeoutError
		exec     *core.ExecutionError
	)
	switch {
	case errors.As(err, &notFound):
		resp.Available = notFound.Available
	case errors.As(err, &timeout):
		resp.Fingerprint = timeout.Fingerprint
	case errors.As(err, &exec):
		resp.Fingerprint = exec.Fingerprint
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", resp.RequestID),
			slog.String("error", err.Error()))
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
