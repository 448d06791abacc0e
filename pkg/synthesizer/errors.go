package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the closed set of failures a backend reports
type ErrorKind string

const (
	KindConfigIncomplete ErrorKind = "config-incomplete"
	KindAuthFailed       ErrorKind = "auth-failed"
	KindConnectionFailed ErrorKind = "connection-failed"
	KindConnectionClosed ErrorKind = "connection-closed"
	KindRateLimited      ErrorKind = "rate-limited"
	KindAPIError         ErrorKind = "api-error"
	KindCanceled         ErrorKind = "canceled"
)

// Sentinels for errors.Is; they match any *Error of the same kind
var (
	ErrConfigIncomplete = &Error{Kind: KindConfigIncomplete}
	ErrAuthFailed       = &Error{Kind: KindAuthFailed}
	ErrConnectionFailed = &Error{Kind: KindConnectionFailed}
	ErrConnectionClosed = &Error{Kind: KindConnectionClosed}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrAPIError         = &Error{Kind: KindAPIError}
	ErrCanceled         = &Error{Kind: KindCanceled}
)

// Error is the only error type backends return
type Error struct {
	Kind    ErrorKind
	Backend string
	Status  int      // HTTP status when the backend answered
	Message string   // detail from the backend, if any
	Missing []string // unset settings for config-incomplete
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Backend != "" {
		b.WriteString(e.Backend)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if len(e.Missing) > 0 {
		b.WriteString(": missing ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Backend == "" && t.Status == 0
}

// KindOf classifies err. Context cancellation is canceled; anything outside
// the taxonomy is reported as api-error. A nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindConnectionFailed
	}
	return KindAPIError
}

// IsCanceled reports whether err came from a user-initiated abort
func IsCanceled(err error) bool {
	return KindOf(err) == KindCanceled
}

func configError(backend string, missing []string) *Error {
	return &Error{Kind: KindConfigIncomplete, Backend: backend, Missing: missing}
}

// statusError maps a non-2xx response to the taxonomy
func statusError(backend string, status int, body []byte) *Error {
	kind := KindAPIError
	switch status {
	case http.StatusUnauthorized:
		kind = KindAuthFailed
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	}
	return &Error{Kind: kind, Backend: backend, Status: status, Message: errorMessage(body)}
}

// transportError maps a failed round trip. A cancelled ctx wins over the
// transport error it caused.
func transportError(ctx context.Context, backend string, kind ErrorKind, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if (ctx != nil && errors.Is(ctx.Err(), context.Canceled)) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, Backend: backend, Err: err}
	}
	return &Error{Kind: kind, Backend: backend, Err: err}
}

// errorMessage pulls a readable message out of an error body
func errorMessage(body []byte) string {
	const limit = 512
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if len(body) > 0 && body[0] == '{' && jsonAPI.Unmarshal(body, &payload) == nil {
		if payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > limit {
		msg = msg[:limit]
	}
	return msg
}
