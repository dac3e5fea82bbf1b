package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/forward"
	"nocturne-hq/parity/pkg/maintenance"
	"nocturne-hq/parity/pkg/proxy/types"
)

// HandleError converts pipeline errors to error responses. Unknown errors
// become a generic 500 so internal details are not exposed.
func HandleError(err error) *types.ErrorResponse {
	var cloneErr *forward.CloneError
	if errors.As(err, &cloneErr) {
		if cloneErr.Limit > 0 {
			return types.NewRequestTooLargeError(fmt.Sprintf("request body exceeds %d bytes", cloneErr.Limit))
		}
		return types.NewInvalidRequestError("failed to read request body", types.CodeInvalidValue)
	}

	var queryErr *analysis.QueryError
	if errors.As(err, &queryErr) {
		return types.NewInvalidRequestError(queryErr.Error(), types.CodeInvalidValue)
	}

	if errors.Is(err, analysis.ErrNotFound) {
		return types.NewNotFoundError("analysis not found", types.CodeAnalysisNotFound)
	}

	if errors.Is(err, maintenance.ErrAlreadyRunning) {
		return types.NewConflictError("a maintenance cycle is already running", types.CodeMaintenanceRunning)
	}

	if errors.Is(err, ErrInvalidReplay) {
		return types.NewInvalidRequestError(err.Error(), types.CodeInvalidValue)
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return types.NewRequestTooLargeError(fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit))
	}

	if errors.Is(err, io.EOF) {
		return types.NewInvalidRequestError("request body is empty", types.CodeInvalidJSON)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return types.NewInvalidRequestError(err.Error(), types.CodeInvalidJSON)
	}

	return types.NewServerError("An internal error occurred. Please try again later.")
}

// WriteErrorResponse writes errResp with the status its type maps to.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) {
	WriteJSON(w, errResp.Error.HTTPStatusCode(), errResp)
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
