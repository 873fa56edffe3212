package pharmaapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNetwork wraps transport failures: refused connections, timeouts, aborted requests.
var ErrNetwork = errors.New("backend unreachable")

// RejectionError is a non-2xx answer from the backend. Detail is the
// server's own message and is meant to be shown verbatim.
type RejectionError struct {
	Status int
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("backend rejected request (%d): %s", e.Status, e.Detail)
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej) && rej.Status == http.StatusUnauthorized
}

// Detail returns the server message carried by err, or err's text.
func Detail(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Detail
	}
	return err.Error()
}

// parseDetail extracts FastAPI-style {"detail": ...}; detail may be a
// string or a list of validation entries with "msg".
func parseDetail(status int, body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil && s != "" {
			return s
		}
		var entries []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &entries); err == nil {
			msgs := make([]string, 0, len(entries))
			for _, e := range entries {
				if e.Msg != "" {
					msgs = append(msgs, e.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	return http.StatusText(status)
}
