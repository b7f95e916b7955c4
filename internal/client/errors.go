package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Messages used when the API gives us nothing better.
const (
	NetworkErrorMessage = "Network error. Please check your connection."
	ExpiredMessage      = "Your session has expired. Please sign in again."
)

// ErrMissingToken is returned when an auth endpoint answers 2xx without a token.
var ErrMissingToken = errors.New("auth response did not include a token")

// Error is the single failure shape callers see. Status is 0 for transport
// failures that never produced a response.
type Error struct {
	Status  int
	Message string
	Code    string
	Fields  map[string]string
	Data    any
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// codeFields maps the API's machine codes onto the form field they concern.
var codeFields = map[string]string{
	"USERNAME_TAKEN":   "username",
	"USERNAME_INVALID": "username",
	"EMAIL_TAKEN":      "email",
	"EMAIL_INVALID":    "email",
	"PASSWORD_WEAK":    "password",
	"PASSWORD_INVALID": "password",
}

// FieldErrors returns the field map the API sent, completed with the field
// implied by Code when that field has no message yet.
func (e *Error) FieldErrors() map[string]string {
	out := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		out[k] = v
	}
	if field, ok := codeFields[e.Code]; ok {
		if _, exists := out[field]; !exists {
			out[field] = e.Message
		}
	}
	return out
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool { return StatusOf(err) == http.StatusUnauthorized }

// errorBody covers the error shapes the API produces.
type errorBody struct {
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields"`
	Errors  json.RawMessage   `json:"errors"`
}

// normalize builds an *Error from a non-2xx response body.
func normalize(status int, body []byte) *Error {
	e := &Error{Status: status}

	var parsed errorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		e.Message = strings.TrimSpace(parsed.Message)
		if e.Message == "" {
			e.Message = strings.TrimSpace(parsed.Error)
		}
		e.Code = parsed.Code
		e.Fields = parsed.Fields
		if len(e.Fields) == 0 && len(parsed.Errors) > 0 {
			// errors is sometimes a list of strings; only a map names fields.
			var fields map[string]string
			if json.Unmarshal(parsed.Errors, &fields) == nil {
				e.Fields = fields
			}
		}
		var data any
		if json.Unmarshal(body, &data) == nil {
			e.Data = data
		}
	} else if len(body) > 0 {
		e.Message = strings.TrimSpace(string(body))
		e.Data = string(body)
	}

	if e.Message == "" {
		if status == http.StatusUnauthorized {
			e.Message = ExpiredMessage
		} else {
			e.Message = http.StatusText(status)
		}
	}
	return e
}
