package exchange

import (
	"errors"
	"fmt"
)

// ErrMinNotional reports an order the exchange rejected for being below
// its minimum notional value. It is always wrapped in a PermanentError.
var ErrMinNotional = errors.New("order below minimum notional")

// TransientError marks a failure that is safe to retry on a later tick:
// the request may never have reached the exchange (network error, timeout,
// rate limit, server error).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient exchange error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a rejection by the exchange. Retrying the same
// request will fail again, so callers must not resubmit.
type PermanentError struct {
	Code int
	Msg  string
	Err  error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("exchange rejected request (code %d): %s", e.Code, e.Msg)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err allows a retry with identical parameters.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsMinNotional reports whether err is a below-minimum-notional rejection.
func IsMinNotional(err error) bool {
	return errors.Is(err, ErrMinNotional)
}
