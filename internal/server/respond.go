// ABOUTME: JSON request decoding, response writing and error-to-status mapping
// ABOUTME: Every API handler reports failures through writeError

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/branding"
	"github.com/2389/assistant-console/internal/followups"
	"github.com/2389/assistant-console/internal/formatting"
	"github.com/2389/assistant-console/internal/knowledge"
	"github.com/2389/assistant-console/internal/library"
	"github.com/2389/assistant-console/internal/prompt"
	"github.com/2389/assistant-console/internal/provider"
	"github.com/2389/assistant-console/internal/store"
	"github.com/2389/assistant-console/internal/templates"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Error   string                   `json:"error"`
	Missing []string                 `json:"missing,omitempty"`
	Errors  []prompt.ValidationError `json:"errors,omitempty"`
}

// writeJSON writes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error message with the given status.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// writeError maps a service error to a status code and writes it.
// Unexpected errors are logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var valuesErr *templates.ValuesError
	if errors.As(err, &valuesErr) {
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   err.Error(),
			Missing: valuesErr.Report.Missing,
			Errors:  valuesErr.Report.Errors,
		})
		return
	}

	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.sendJSONError(w, status, "internal error")
		return
	}
	s.sendJSONError(w, status, err.Error())
}

// errorStatus returns the HTTP status for a service error.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrAdminUserNotFound),
		errors.Is(err, library.ErrUnknownSuggestion):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrCategoryInUse),
		errors.Is(err, store.ErrUsernameExists),
		errors.Is(err, templates.ErrDuplicateRequest),
		errors.Is(err, auth.ErrLastOwner),
		errors.Is(err, auth.ErrAlreadyBootstrapped):
		return http.StatusConflict

	case errors.Is(err, templates.ErrInvalidTemplate),
		errors.Is(err, templates.ErrInvalidValues),
		errors.Is(err, prompt.ErrDuplicateVariable),
		errors.Is(err, prompt.ErrVariableNotFound),
		errors.Is(err, prompt.ErrInvalidVariableName),
		errors.Is(err, followups.ErrInvalidFollowUp),
		errors.Is(err, provider.ErrInvalidProvider),
		errors.Is(err, provider.ErrProviderInactive),
		errors.Is(err, formatting.ErrInvalidSettings),
		errors.Is(err, branding.ErrInvalidBranding),
		errors.Is(err, knowledge.ErrInvalidResource),
		errors.Is(err, knowledge.ErrBinaryContent),
		errors.Is(err, knowledge.ErrUnknownCharset),
		errors.Is(err, knowledge.ErrNotDirectory),
		errors.Is(err, auth.ErrInvalidUser),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest

	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, knowledge.ErrTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, provider.ErrProviderRejected),
		errors.Is(err, provider.ErrEmptyResponse):
		return http.StatusBadGateway

	case errors.Is(err, templates.ErrTestUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// errBadRequest marks malformed request bodies and query parameters.
var errBadRequest = errors.New("bad request")

// decodeJSON reads a JSON body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be true or false", errBadRequest, name)
	}
	return &v, nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return v, nil
}

// queryString returns a pointer to a query parameter, nil when absent.
func queryString(r *http.Request, name string) *string {
	if !r.URL.Query().Has(name) {
		return nil
	}
	v := r.URL.Query().Get(name)
	return &v
}
