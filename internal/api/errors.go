package api

import (
	"fmt"
	"net/http"
)

// NetworkError reports a call that never produced an HTTP response:
// connection failures, timeouts and cancelled contexts.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError reports a non-2xx response.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server responded %d: %s", e.Op, e.StatusCode, e.Message)
}

// NotFound reports whether the server answered 404.
func (e *ServerError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}
