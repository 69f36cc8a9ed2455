package flickr

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrInvalidRequest is returned for requests that cannot be sent.
	ErrInvalidRequest = errors.New("invalid search request")

	// ErrMalformedResponse is returned when the body is not a valid search response.
	ErrMalformedResponse = errors.New("malformed search response")

	// ErrQuotaExceeded is returned when the API key quota for this window is used up.
	ErrQuotaExceeded = errors.New("flickr quota exceeded")

	// ErrCircuitOpen is returned while the circuit breaker rejects calls.
	ErrCircuitOpen = errors.New("flickr circuit breaker open")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassAPI represents a stat:"fail" answer from the REST API.
	ErrorClassAPI ErrorClass = "api"

	// ErrorClassMalformed represents bodies that could not be parsed.
	ErrorClassMalformed ErrorClass = "malformed"

	// ErrorClassCanceled represents caller cancellation.
	ErrorClassCanceled ErrorClass = "canceled"
)

// Flickr REST error code for "Service currently unavailable".
const codeServiceUnavailable = 105

// APIError is a failed Flickr call with its classification.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	// Code is the Flickr error code of a stat:"fail" response.
	Code    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("flickr %s error (status %d)", e.Class, e.StatusCode)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s code %d", msg, e.Code)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassOf returns the classification of err.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ErrorClassCanceled
	case errors.As(err, &apiErr):
		return apiErr.Class
	case errors.Is(err, ErrMalformedResponse):
		return ErrorClassMalformed
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassNetwork
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(code int) ErrorClass {
	switch {
	case code >= 500:
		return ErrorClassServer
	case code == 429:
		return ErrorClassServer
	case code >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// UserMessage renders err as a short message suitable for an alert.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExceeded):
		return "Search limit reached. Please try again later."
	case errors.Is(err, ErrCircuitOpen):
		return "Image search is temporarily unavailable. Please try again shortly."
	case errors.Is(err, ErrInvalidRequest):
		return "Please enter a search term."
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Class {
		case ErrorClassAPI:
			if apiErr.Message != "" {
				return "Flickr error: " + apiErr.Message
			}
			return "Flickr rejected the search."
		case ErrorClassNetwork:
			return "Could not reach Flickr. Check your connection and try again."
		case ErrorClassServer:
			return "Flickr is having trouble right now. Please try again."
		case ErrorClassClient:
			return fmt.Sprintf("The search request was rejected (status %d).", apiErr.StatusCode)
		}
	}

	if errors.Is(err, ErrMalformedResponse) {
		return "Received an unexpected response from Flickr."
	}

	return err.Error()
}
