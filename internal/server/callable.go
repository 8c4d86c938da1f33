package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/repteam/rep/internal/shared"
)

// Callable error codes.
const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeNotFound          = "NOT_FOUND"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
	CodeInternal          = "INTERNAL"
)

var codeStatus = map[string]int{
	CodeUnauthenticated:   http.StatusUnauthorized,
	CodeInvalidArgument:   http.StatusBadRequest,
	CodeNotFound:          http.StatusNotFound,
	CodeResourceExhausted: http.StatusTooManyRequests,
	CodeInternal:          http.StatusInternalServerError,
}

// maxBodyBytes bounds request bodies. Resume buffers arrive base64 encoded.
const maxBodyBytes = 16 << 20

const (
	msgUnauthenticated = "The function must be called while authenticated."
	msgEmailFailed     = "Failed to send email via provider."
)

// CallableError is an error with an explicit callable code. Its message is shown to the caller.
type CallableError struct {
	Code    string `json:"status"`
	Message string `json:"message"`
}

// NewCallableError formats a [CallableError].
func NewCallableError(code, format string, args ...any) *CallableError {
	return &CallableError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *CallableError) Error() string {
	return strings.ToLower(e.Code) + ": " + e.Message
}

// HTTPStatus returns the HTTP status of the code, 500 for unknown codes.
func (e *CallableError) HTTPStatus() int {
	if status, ok := codeStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ToCallableError maps an error from the tasks layer onto a callable code.
func ToCallableError(err error) *CallableError {
	var ce *CallableError
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, shared.ErrNotAuthenticated):
		return &CallableError{Code: CodeUnauthenticated, Message: msgUnauthenticated}
	case errors.Is(err, shared.ErrInvalidArgument):
		return &CallableError{Code: CodeInvalidArgument, Message: userMessage(err, shared.ErrInvalidArgument)}
	case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidInput):
		return &CallableError{Code: CodeInvalidArgument, Message: err.Error()}
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrUserNotFound):
		return &CallableError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, shared.ErrEmailSend):
		return &CallableError{Code: CodeInternal, Message: msgEmailFailed}
	}
	return &CallableError{Code: CodeInternal, Message: err.Error()}
}

// userMessage drops the sentinel prefix from err so only the human part is returned.
func userMessage(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}

type callableRequest struct {
	Data json.RawMessage `json:"data"`
}

type callableResponse struct {
	Result any `json:"result"`
}

type errorResponse struct {
	Error *CallableError `json:"error"`
}

// decodeCallable reads {"data": ...} into v. An absent or null data decodes as {}.
func decodeCallable(r *http.Request, v any) error {
	var req callableRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return NewCallableError(CodeInvalidArgument, "Request body must be a JSON object with a data field.")
	}

	data := bytes.TrimSpace(req.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewCallableError(CodeInvalidArgument, "Invalid data: %v", err)
	}
	return nil
}

func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, callableResponse{Result: result})
}

func writeError(w http.ResponseWriter, err *CallableError) {
	writeJSON(w, err.HTTPStatus(), errorResponse{Error: err})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
