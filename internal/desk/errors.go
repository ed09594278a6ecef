package desk

import (
	"context"
	"errors"
	"fmt"

	"github.com/SeniorPomidorro/suptech-desk/pkg/transport"
)

// Error taxonomy. Callers branch with errors.Is. The texts carry no package
// prefix; remoteError adds it once, together with the operation.
var (
	// ErrValidation marks input rejected before any remote call.
	ErrValidation = errors.New("invalid input")
	// ErrUnauthorized marks credentials the remote side rejected or that are missing.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden marks accepted credentials that lack permission for the action.
	ErrForbidden = errors.New("permission denied")
	// ErrNotFound marks a ticket, transition or user that does not exist in the current state.
	ErrNotFound = errors.New("not found")

	ErrTransitionNotAvailable = fmt.Errorf("%w: transition not available", ErrNotFound)
	ErrUserNotFound           = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrNoCredentials          = fmt.Errorf("%w: credentials not configured", ErrUnauthorized)

	// ErrBusy is returned when the same action is already in flight for the open ticket.
	ErrBusy = errors.New("operation already in progress")
	// ErrStale is returned to a caller whose response arrived after the state moved on.
	ErrStale = errors.New("response superseded")
	// ErrNoTicketOpen is returned by ticket actions while the workflow is not Open.
	ErrNoTicketOpen = errors.New("no ticket open")
)

// remoteError is a failed remote operation, already classified.
type remoteError struct {
	op  string
	err error
}

func (e *remoteError) Error() string { return "desk: " + e.op + ": " + e.err.Error() }
func (e *remoteError) Unwrap() error { return e.err }

// classify maps transport failures onto the taxonomy and keeps the cause.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *remoteError
	switch {
	case errors.As(err, &classified):
		return err
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound):
	case errors.Is(err, transport.ErrUnauthorized):
		err = fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case errors.Is(err, transport.ErrForbidden):
		err = fmt.Errorf("%w: %w", ErrForbidden, err)
	case errors.Is(err, transport.ErrNotFound):
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("timed out: %w", err)
	}
	return &remoteError{op: op, err: err}
}

// normalize classifies errors that did not come through a Source method that
// already did so.
func normalize(err error) error {
	if err == nil || errors.Is(err, ErrValidation) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
		return err
	}
	return classify("remote call", err)
}
