package impersonation

import "github.com/jrsteele09/go-session-identity/internal/errors"

// Result is what every controller operation returns. Failures are reported
// here rather than as a Go error so callers handle every outcome the same way.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	// Reconstructed is set when the original admin credential was missing and
	// had to be rebuilt from the regular record or the main slot.
	Reconstructed bool `json:"reconstructed,omitempty"`

	err error
}

// Err returns the failure cause for errors.Is checks, or nil on success
func (r Result) Err() error {
	return r.err
}

func success(data any, reconstructed bool) Result {
	return Result{Success: true, Data: data, Reconstructed: reconstructed}
}

func failure(err error) Result {
	if err == nil {
		err = errors.ErrInternal
	}
	return Result{Error: err.Error(), err: err}
}
