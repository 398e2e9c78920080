package model

import "time"

// Response is the uniform envelope returned by every broker operation,
// whether it succeeded or not. ExecutionTime is wall clock milliseconds.
type Response struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         string      `json:"error,omitempty"`
	ExecutionTime float64     `json:"executionTime"`

	// Err keeps the failure for callers that map it to a status code.
	Err error `json:"-"`
}

// Elapsed returns the milliseconds elapsed since start as a float.
func Elapsed(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// ErrorResponse is the standard envelope for HTTP errors that do not come
// from a broker operation (bad input, unknown routes, store failures).
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ListResponse wraps list results with a count.
type ListResponse struct {
	Resource interface{} `json:"resource"`
	Count    int         `json:"count"`
}
