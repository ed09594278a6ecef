package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized matches APIError values for 401 responses.
	ErrUnauthorized = errors.New("transport: unauthorized")
	// ErrForbidden matches APIError values for 403 responses: the credentials
	// were accepted but lack permission.
	ErrForbidden = errors.New("transport: forbidden")
	// ErrNotFound matches APIError values for 404 responses.
	ErrNotFound = errors.New("transport: not found")
)

// APIError describes non-2xx responses.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
	Headers    http.Header
	RequestID  string
}

func (e *APIError) Error() string {
	if e == nil {
		return "transport: api error"
	}
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("transport: api error status=%d: %s", e.StatusCode, msg)
	}
	if e.Body == "" {
		return fmt.Sprintf("transport: api error status=%d", e.StatusCode)
	}
	return fmt.Sprintf("transport: api error status=%d body=%q", e.StatusCode, e.Body)
}

// Is lets callers classify responses with errors.Is against ErrUnauthorized,
// ErrForbidden or ErrNotFound.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Message extracts Atlassian style error details ({"errorMessages":[...],"errors":{...}})
// from the captured body. Returns empty string for any other body shape.
func (e *APIError) Message() string {
	if e == nil || e.Body == "" {
		return ""
	}

	var payload struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
		Message       string            `json:"message"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err != nil {
		return ""
	}

	parts := make([]string, 0, len(payload.ErrorMessages)+len(payload.Errors)+1)
	for _, msg := range payload.ErrorMessages {
		if strings.TrimSpace(msg) != "" {
			parts = append(parts, msg)
		}
	}
	fields := make([]string, 0, len(payload.Errors))
	for field := range payload.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		parts = append(parts, field+": "+payload.Errors[field])
	}
	if len(parts) == 0 && payload.Message != "" {
		parts = append(parts, payload.Message)
	}
	return strings.Join(parts, "; ")
}

// NewAPIError builds APIError from HTTP response and consumes response body.
func NewAPIError(resp *http.Response, maxBodyBytes int64) *APIError {
	if resp == nil {
		return &APIError{}
	}

	bodyBytes, _ := ReadBodyLimited(resp.Body, maxBodyBytes)
	reqID := resp.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = resp.Header.Get("X-Arequestid")
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(bodyBytes),
		Headers:    resp.Header.Clone(),
		RequestID:  reqID,
	}
}
