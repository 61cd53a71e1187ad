package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	vderrors "github.com/23skdu/vdbload/internal/errors"
)

// statusError builds the typed error for a non-2xx response.
func statusError(errType vderrors.ErrorType, op string, status int, body []byte, limit int) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	text := http.StatusText(status)
	if text == "" {
		text = "unexpected status"
	}
	if msg != "" {
		text = fmt.Sprintf("%s: %s", text, msg)
	}
	return vderrors.New(errType, op, text).WithStatus(status)
}

// transportError builds the typed error for a request that got no response.
func transportError(errType vderrors.ErrorType, op string, err error) error {
	return vderrors.Wrap(vderrors.WrapNetworkError(err, op, "request failed"), errType, op, "no response from server")
}

// IsConflict reports whether err is a 409 response, as returned when a
// collection already exists.
func IsConflict(err error) bool {
	return vderrors.StatusCode(err) == http.StatusConflict
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return vderrors.StatusCode(err) == http.StatusNotFound
}

// IsNetwork reports whether err happened before any response was received.
func IsNetwork(err error) bool {
	return errors.Is(err, vderrors.ErrNetwork)
}
