package marketapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrUnreachable wraps transport failures: DNS, refused connections, resets.
	ErrUnreachable = errors.New("marketplace api unreachable")
	// ErrSessionExpired is returned by mutations that hit a 401. The session
	// hooks have already run when a caller sees it.
	ErrSessionExpired = errors.New("session expired")
	// ErrForbidden is returned by mutations that hit a 403 on an admin route.
	ErrForbidden = errors.New("access denied")
	// ErrMalformed marks a 2xx body that is not JSON.
	ErrMalformed = errors.New("malformed response body")
)

// APIError is a non-2xx answer carrying the normalized server message.
type APIError struct {
	Status   int
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	return e.Message
}

// Surfaced reports whether err has already been shown to the user by the
// client's hooks, so callers must not toast it a second time.
func Surfaced(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrForbidden)
}

// Message extracts a user-facing message from any client error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// NormalizeDetail turns an error envelope into one readable message. The
// detail field may be a string, an object with msg/message, or a list of
// validation objects whose messages are joined with ", ". Bodies that are not
// JSON, or carry no usable detail, yield fallback.
func NormalizeDetail(body []byte, fallback string) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return fallback
	}
	detail := gjson.GetBytes(body, "detail")
	switch {
	case !detail.Exists():
		return fallback
	case detail.IsArray():
		var parts []string
		for _, item := range detail.Array() {
			parts = append(parts, itemMessage(item, fallback))
		}
		if len(parts) == 0 {
			return fallback
		}
		return strings.Join(parts, ", ")
	case detail.IsObject():
		return itemMessage(detail, fallback)
	case detail.Type == gjson.String:
		if msg := detail.String(); msg != "" {
			return msg
		}
		return fallback
	case detail.Type == gjson.Null:
		return fallback
	default:
		return detail.String()
	}
}

func itemMessage(item gjson.Result, fallback string) string {
	if item.Type == gjson.String && item.String() != "" {
		return item.String()
	}
	for _, key := range []string{"msg", "message", "detail"} {
		if v := item.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return fallback
}

func statusFallback(status int) string {
	return fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
}
