package security

import "errors"

// Sentinel errors surfaced to callers of the engine
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrIPBlocked         = errors.New("ip address is blocked")
	ErrAccountLocked     = errors.New("account is temporarily locked")
	ErrContentBlocked    = errors.New("request content blocked")
	ErrEventNotFound     = errors.New("security event not found")
)
