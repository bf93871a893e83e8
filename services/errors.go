package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an external-call failure.
type Kind string

const (
	KindAPI     Kind = "api_error"
	KindNetwork Kind = "network_error"
	KindFile    Kind = "file_error"
	KindMemory  Kind = "memory_error"
	KindTimeout Kind = "timeout_error"
	KindUnknown Kind = "unknown_error"
)

// Classify maps an error onto the failure taxonomy from its text and type.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return KindAPI
	}

	text := strings.ToLower(err.Error())
	switch {
	case containsAny(text, "timeout", "timed out", "deadline exceeded"):
		return KindTimeout
	case containsAny(text, "connection", "refused", "reset", "dns", "no such host", "unreachable", "eof", "broken pipe"):
		return KindNetwork
	case containsAny(text, "api", "status", "quota", "unauthorized", "forbidden", "invalid key", "rate limit"):
		return KindAPI
	case containsAny(text, "no such file", "permission denied", "file exists", "is a directory", "disk"):
		return KindFile
	case containsAny(text, "out of memory", "cannot allocate", "oom"):
		return KindMemory
	default:
		return KindUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// HTTPError carries the status and retry metadata of a failed HTTP call so
// the retry layer can treat 400 and 429 specially.
type HTTPError struct {
	Service    string
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.StatusCode, body)
}

// ServiceError is the terminal failure returned when retries are exhausted.
type ServiceError struct {
	Service  string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) [%s]: %v", e.Service, e.Attempts, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
