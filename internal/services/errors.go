package services

import (
	"errors"
	"fmt"

	"connect-go/internal/metrics"
)

// 错误类别。每个具体错误只包装其中一个，调用方用 errors.Is 判断类别。
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrConflict         = errors.New("conflict")
	ErrForbidden        = errors.New("forbidden")
	ErrStoreFailure     = errors.New("store failure")
)

var (
	ErrUserNotFound     = fmt.Errorf("%w: user does not exist", ErrNotFound)
	ErrRequestNotFound  = fmt.Errorf("%w: connection request does not exist", ErrNotFound)
	ErrSelfRequest      = fmt.Errorf("%w: self-request", ErrInvalidOperation)
	ErrSelfConnection   = fmt.Errorf("%w: cannot connect a user to themselves", ErrInvalidOperation)
	ErrInvalidStatus    = fmt.Errorf("%w: unsupported target status", ErrInvalidOperation)
	ErrAlreadyPending   = fmt.Errorf("%w: already pending", ErrConflict)
	ErrAlreadyConnected = fmt.Errorf("%w: already connected", ErrConflict)
	ErrRequestResolved  = fmt.Errorf("%w: request is no longer pending", ErrConflict)
	ErrNotRequestParty  = fmt.Errorf("%w: not a party of this request", ErrForbidden)
	ErrWrongRole        = fmt.Errorf("%w: acting user may not make this transition", ErrForbidden)

	ErrEmailTaken         = fmt.Errorf("%w: email already exists", ErrConflict)
	ErrWrongPassword      = fmt.Errorf("%w: current password is incorrect", ErrInvalidOperation)
	ErrNotProfileOwner    = fmt.Errorf("%w: can only edit your own profile", ErrForbidden)
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// storeErr wraps a persistence error so that both the kind and the cause stay inspectable.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}

// outcomeOf maps an error to its metrics outcome label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrInvalidOperation):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrForbidden):
		return metrics.OutcomeForbidden
	default:
		return metrics.OutcomeStoreFailure
	}
}
