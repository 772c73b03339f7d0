// Package apperr defines the typed rejections the engine returns to its
// dispatcher. Every sentinel here is recoverable and safe to surface to the
// end user; anything else coming out of a service is a storage or transport
// fault that the caller should retry.
package apperr

import "errors"

var (
	// ErrValidation means the input shape was bad (empty content, too many
	// categories, and so on).
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState means the operation is not legal in the entity's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotApproved means the confession is not open for comments.
	ErrNotApproved = errors.New("confession not approved")

	// ErrAlreadyProcessed means a moderation decision was already recorded.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrAlreadyRequested means an identical chat request is still pending.
	ErrAlreadyRequested = errors.New("already requested")

	// ErrBlocked means delivery was suppressed. Deliberately carries no
	// detail beyond "message not delivered".
	ErrBlocked = errors.New("message not delivered")

	// ErrRateLimited means the submission window has not elapsed yet.
	ErrRateLimited = errors.New("rate limited")

	// ErrProfanity means the content tripped the injected profanity check.
	ErrProfanity = errors.New("content contains banned words")
)

// Recoverable reports whether err is one of the typed rejections above, as
// opposed to a storage or transport fault.
func Recoverable(err error) bool {
	for _, sentinel := range []error{
		ErrValidation, ErrInvalidState, ErrNotFound, ErrNotApproved,
		ErrAlreadyProcessed, ErrAlreadyRequested, ErrBlocked,
		ErrRateLimited, ErrProfanity,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
