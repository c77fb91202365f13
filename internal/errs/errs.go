// Package errs defines the shared error taxonomy. Callers classify failures
// with errors.Is against the sentinels and add context with fmt.Errorf("%w: ...").
package errs

import "errors"

var (
	// ErrValidation marks malformed or missing input. Caller's fault, no retry.
	ErrValidation = errors.New("validation failed")

	// ErrDomainRule marks an illegal state transition or business invariant breach.
	ErrDomainRule = errors.New("domain rule violation")

	ErrNotFound = errors.New("not found")

	// ErrConcurrency marks a stale-version save. The caller should re-fetch
	// and retry the whole operation; the store never merges or retries itself.
	ErrConcurrency = errors.New("concurrent modification")

	// ErrRemoteStep marks an inventory or payment capability failure. It is
	// consumed by the saga orchestrator and converted into a failed order,
	// never surfaced raw to the API caller.
	ErrRemoteStep = errors.New("remote step failed")

	// ErrUnavailable marks a downstream judged unavailable by its circuit
	// breaker. Retry wrappers fast-fail on it.
	ErrUnavailable = errors.New("service unavailable")

	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrUnitMismatch     = errors.New("unit mismatch")
)

// ErrDuplicateBid is a specialization of ErrDomainRule so callers can match
// either the broad class or the specific rule.
var ErrDuplicateBid = &wrapped{msg: "vendor has already submitted a bid", under: ErrDomainRule}

type wrapped struct {
	msg   string
	under error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.under }

// Any reports whether err matches any of the given sentinels.
func Any(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
