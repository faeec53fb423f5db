package engine

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every send precondition failure. It is returned
// before any network call is made.
var ErrValidation = errors.New("validation failure")

var (
	ErrEmptyBody       = fmt.Errorf("%w: message body is empty", ErrValidation)
	ErrSendInFlight    = fmt.Errorf("%w: a message is already being sent", ErrValidation)
	ErrNoRecipient     = fmt.Errorf("%w: no recipient for a new conversation", ErrValidation)
	ErrAlreadyAttached = errors.New("engine already attached")
	ErrDetaching       = errors.New("engine is detaching")
)
