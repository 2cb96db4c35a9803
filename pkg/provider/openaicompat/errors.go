package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/rhuss/relay/pkg/api"
)

// statusErrors maps backend status codes to an error constructor and the
// message used when the body carries none.
var statusErrors = map[int]struct {
	build    func(string) *api.APIError
	fallback string
}{
	http.StatusBadRequest:         {func(m string) *api.APIError { return api.NewInvalidRequestError("", m) }, "model backend rejected the request"},
	http.StatusUnauthorized:       {api.NewServerError, "model backend rejected the API key"},
	http.StatusForbidden:          {api.NewServerError, "model backend rejected the API key"},
	http.StatusNotFound:           {api.NewNotFoundError, "model not found on backend"},
	http.StatusTooManyRequests:    {api.NewTooManyRequestsError, "model backend rate limit exceeded"},
	http.StatusBadGateway:         {api.NewUnavailableError, "model backend unavailable (HTTP 502)"},
	http.StatusServiceUnavailable: {api.NewUnavailableError, "model backend unavailable (HTTP 503)"},
	http.StatusGatewayTimeout:     {api.NewUnavailableError, "model backend unavailable (HTTP 504)"},
}

// MapHTTPError converts a non-2xx backend response into an APIError. The
// backend's own error message is used when the body carries one.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := ExtractErrorMessage(resp.Body)

	if e, ok := statusErrors[resp.StatusCode]; ok {
		if message == "" {
			message = e.fallback
		}
		return e.build(message)
	}
	if message == "" {
		message = fmt.Sprintf("model backend error (HTTP %d)", resp.StatusCode)
	}
	return api.NewServerError(message)
}

// MapNetworkError converts a failed round trip into an APIError. Timeouts
// and refused connections both count as an unavailable backend.
func MapNetworkError(err error) *api.APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return api.NewUnavailableError("model backend did not answer in time")
	}
	return api.NewUnavailableError("model backend unreachable: " + err.Error())
}

// ExtractErrorMessage returns error.message from a ChatErrorResponse body,
// or "" when the body is empty or not in that format.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var errResp ChatErrorResponse
	if json.Unmarshal(data, &errResp) != nil {
		return ""
	}
	return errResp.Error.Message
}
