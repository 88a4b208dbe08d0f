package kintone

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError is an error response from the kintone REST API.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	ID         string `json:"id"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("kintone: HTTP %d", e.HTTPStatus)
	}
	return fmt.Sprintf("kintone: %s (%s): %s", e.Code, e.ID, e.Message)
}

// decodeAPIError turns a non-2xx response into an *APIError. Bodies that
// are not the standard error shape still yield an error carrying the
// HTTP status.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{HTTPStatus: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	// Best effort; an HTML error page from a proxy will not decode.
	json.Unmarshal(body, apiErr)
	return apiErr
}
