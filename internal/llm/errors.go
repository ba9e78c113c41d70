package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrUpstreamTimeout marks a provider call that ran out of time.
var ErrUpstreamTimeout = errors.New("upstream timeout")

// ErrorKind is the coarse reason a provider attempt failed.
type ErrorKind string

const (
	KindNone     ErrorKind = ""
	KindTimeout  ErrorKind = "timeout"
	KindQuota    ErrorKind = "quota"
	KindHTTP     ErrorKind = "http"
	KindEmpty    ErrorKind = "empty"
	KindParse    ErrorKind = "parse"
	KindCanceled ErrorKind = "canceled"
	KindNetwork  ErrorKind = "network"
	KindConfig   ErrorKind = "config"
	KindOther    ErrorKind = "other"
)

// ProviderError is returned by adapters for failures they can classify.
type ProviderError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (http status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StatusError builds a ProviderError for a non-2xx response.
func StatusError(status int, body string) *ProviderError {
	kind := KindHTTP
	if status == 429 {
		kind = KindQuota
	}
	if status == 408 || status == 504 {
		kind = KindTimeout
	}
	return &ProviderError{Kind: kind, Status: status, Err: errors.New(truncate(strings.TrimSpace(body), 300))}
}

// ProviderCallResult records one provider attempt.
type ProviderCallResult struct {
	Provider  ProviderID
	Model     string
	Succeeded bool
	Latency   time.Duration
	ErrorKind ErrorKind
}

// ProviderExhaustedError is returned when every configured provider failed.
type ProviderExhaustedError struct {
	Attempts []ProviderCallResult
	errs     []error
}

func (e *ProviderExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "provider exhausted: no providers configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Provider, a.ErrorKind))
	}
	return "provider exhausted: " + strings.Join(parts, ", ")
}

func (e *ProviderExhaustedError) Unwrap() []error { return e.errs }

// IsProviderExhausted reports whether err is a *ProviderExhaustedError.
func IsProviderExhausted(err error) bool {
	var target *ProviderExhaustedError
	return errors.As(err, &target)
}

// ClassifyError maps an adapter error to an ErrorKind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Kind != "" {
		return perr.Kind
	}
	if errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "client.timeout") || strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "429"):
		return KindQuota
	case strings.Contains(msg, "http status"):
		return KindHTTP
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection closed"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "eof"):
		return KindNetwork
	}
	return KindOther
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
