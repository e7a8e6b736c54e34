package weread

import (
	"errors"
	"fmt"
)

// ErrSessionExpired indicates the cookie no longer authenticates the user.
var ErrSessionExpired = errors.New("weread session expired, refresh WEREAD_COOKIE")

// ErrRateLimited indicates the API rate limit was exceeded
var ErrRateLimited = errors.New("weread API rate limit exceeded")

// sessionErrCodes are errCode values WeRead returns for a dead login.
var sessionErrCodes = map[int]bool{
	-2010: true, // user does not exist
	-2012: true, // login timed out
}

// ServerError represents a 5xx error from the WeRead API
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("WeRead server error: HTTP %d", e.StatusCode)
}

// APIError is an errCode reported inside a successful HTTP response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("WeRead API error %d: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if sessionErrCodes[e.Code] {
		return ErrSessionExpired
	}
	return nil
}
