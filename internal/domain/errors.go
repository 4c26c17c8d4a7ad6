package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData means the candle history is missing or too short. The instrument is skipped.
	ErrInsufficientData = errors.New("insufficient candle history")
	// ErrMalformedInput means indicator input was not numeric. Neutral defaults are used.
	ErrMalformedInput = errors.New("malformed indicator input")

	ErrBelowThreshold = errors.New("confidence below threshold")
	ErrCooldown       = errors.New("instrument key cooling down")
	ErrDuplicate      = errors.New("duplicate trade within the same minute")
	ErrRateLimited    = errors.New("hourly trade limit reached")
	ErrKilled         = errors.New("kill flag active")
	ErrZeroSize       = errors.New("position size is zero")

	ErrBroker         = errors.New("broker call failed")
	ErrCircuitBreaker = errors.New("circuit breaker tripped")
)

// IsRejection reports whether err is a normal decision-flow rejection rather than a fault.
func IsRejection(err error) bool {
	for _, target := range []error{ErrBelowThreshold, ErrCooldown, ErrDuplicate, ErrRateLimited, ErrKilled, ErrZeroSize} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// BrokerError describes a failed adapter call.
type BrokerError struct {
	Broker     string
	Op         string
	StatusCode int
	Err        error
}

func (e *BrokerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Broker, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Broker, e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

func (e *BrokerError) Is(target error) bool { return target == ErrBroker }

func NewBrokerError(broker, op string, status int, err error) *BrokerError {
	return &BrokerError{Broker: broker, Op: op, StatusCode: status, Err: err}
}
