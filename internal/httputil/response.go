package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ErrorResponse is the error body returned by the identity REST API:
// {"error": {"code": 400, "message": "EMAIL_EXISTS"}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the HTTP status code and the machine-readable message
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError is a non-2xx response from a REST endpoint.
type APIError struct {
	Status int
	// Reason is the leading code of the message, e.g. "WEAK_PASSWORD" for
	// "WEAK_PASSWORD : Password should be at least 6 characters".
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// DecodeError reads an error body. Bodies that are not in the expected
// shape still yield an APIError carrying the status.
func DecodeError(status int, body io.Reader) *APIError {
	apiErr := &APIError{Status: status}

	data, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var resp ErrorResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return apiErr
	}

	apiErr.Message = resp.Error.Message
	reason, _, _ := strings.Cut(resp.Error.Message, " ")
	apiErr.Reason = strings.TrimSpace(reason)
	return apiErr
}
