package lambdaapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is returned when the API answers with an unexpected status.
type APIError struct {
	StatusCode   int    `json:"-"`
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.ErrorType == "" {
		return fmt.Sprintf("lambda api returned status %d: %s", e.StatusCode, e.ErrorMessage)
	}
	return fmt.Sprintf("lambda api returned status %d: %s: %s", e.StatusCode, e.ErrorType, e.ErrorMessage)
}

// newAPIError decodes the error document in body. Bodies that are not an
// error document are kept verbatim as the message.
func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || (apiErr.ErrorType == "" && apiErr.ErrorMessage == "") {
		apiErr = &APIError{ErrorMessage: strings.TrimSpace(string(body))}
	}
	apiErr.StatusCode = statusCode
	return apiErr
}
