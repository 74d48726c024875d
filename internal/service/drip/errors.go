package drip

import "errors"

// Sentinel errors for the drip service layer.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUnknownEventKind     = errors.New("unknown event kind")
	ErrActiveSequenceExists = errors.New("user already has an active sequence")
	ErrNotFound             = errors.New("not found")
	ErrUnsubscribed         = errors.New("user is unsubscribed")
	ErrNoSteps              = errors.New("campaign has no steps")
)
