package util

import "errors"

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrVariantNotFree    = errors.New("variant is not available without an account")
	ErrResultNotFound    = errors.New("test result not found")
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrAttemptNotActive  = errors.New("attempt is not active")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrRankingNotFound   = errors.New("ranking not found")
)
