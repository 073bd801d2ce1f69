package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means the cleaned daily series is empty; no fit is attempted.
	ErrNoData = errors.New("no usable daily data")

	// ErrFitTimeout means the model fit did not finish within its deadline.
	ErrFitTimeout = errors.New("model fit timed out")
)

// FitError reports a failed model estimation. No alternate model is tried.
type FitError struct {
	Reason string
	Err    error
}

func (e *FitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model fit failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("model fit failed: %s", e.Reason)
}

func (e *FitError) Unwrap() error {
	return e.Err
}
