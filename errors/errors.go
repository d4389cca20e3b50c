package errors

import "fmt"

var (
	ErrInvalidIdentity      = fmt.Errorf("invalid identity")
	ErrInvalidToken         = fmt.Errorf("invalid token")
	ErrTokenAlreadyConsumed = fmt.Errorf("token already consumed")
	ErrTokenExpired         = fmt.Errorf("token expired")
	ErrUnknownSelfIdentity  = fmt.Errorf("sender does not match the authenticated session")
	ErrInvalidTarget        = fmt.Errorf("invalid target")
	ErrRateLimited          = fmt.Errorf("rate limit exceeded")
	ErrTokenGeneration      = fmt.Errorf("token generation failed")
	ErrMissingToken         = fmt.Errorf("authorization token is missing")

	ErrChannelClosed = fmt.Errorf("channel closed")
	ErrChannelFull   = fmt.Errorf("channel buffer full")

	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
)
