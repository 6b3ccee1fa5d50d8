package risk

import (
	"errors"
	"fmt"
)

// PredictorError is a failed external prediction: unreachable, non-success
// status, or unparsable output. Diagnostics holds whatever text the predictor
// returned.
type PredictorError struct {
	Reason      string
	Status      int
	Diagnostics string
	Err         error
}

func (e *PredictorError) Error() string {
	msg := "predictor failed: " + e.Reason
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PredictorError) Unwrap() error {
	return e.Err
}

func IsPredictorError(err error) bool {
	var pe *PredictorError
	return errors.As(err, &pe)
}
