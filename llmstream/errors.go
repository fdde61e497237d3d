package llmstream

import "fmt"

// ClientError is the base error type for all llmstream errors.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// HTTPError represents an error response from the model API.
type HTTPError struct {
	ClientError
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s (status=%d, retryable=%v)", e.Message, e.StatusCode, e.Retryable)
}

// Concrete API error types.

type AuthenticationError struct{ HTTPError }
type AccessDeniedError struct{ HTTPError }
type NotFoundError struct{ HTTPError }
type InvalidRequestError struct{ HTTPError }
type RateLimitError struct{ HTTPError }
type ServerError struct{ HTTPError }
type ContextLengthError struct{ HTTPError }

// Non-HTTP errors.

type NetworkError struct{ ClientError }
type RequestTimeoutError struct{ ClientError }
type StreamError struct{ ClientError }
type ConfigurationError struct{ ClientError }

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, errorCode string, retryAfter *float64) error {
	he := HTTPError{
		ClientError: ClientError{Message: message},
		StatusCode:  statusCode,
		ErrorCode:   errorCode,
		RetryAfter:  retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{HTTPError: he}
	case 401:
		return &AuthenticationError{HTTPError: he}
	case 403:
		return &AccessDeniedError{HTTPError: he}
	case 404:
		return &NotFoundError{HTTPError: he}
	case 408:
		return &RequestTimeoutError{ClientError: ClientError{Message: message}}
	case 413:
		return &ContextLengthError{HTTPError: he}
	case 429:
		he.Retryable = true
		return &RateLimitError{HTTPError: he}
	case 500, 502, 503, 504:
		he.Retryable = true
		return &ServerError{HTTPError: he}
	default:
		// Unknown status codes default to retryable.
		he.Retryable = true
		return &he
	}
}

// IsRetryable returns true if the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *HTTPError:
		return e.Retryable
	case *AuthenticationError, *AccessDeniedError, *NotFoundError,
		*InvalidRequestError, *ContextLengthError, *ConfigurationError:
		return false
	case *RateLimitError, *ServerError, *NetworkError,
		*StreamError, *RequestTimeoutError:
		return true
	default:
		return false
	}
}
