// Package claim implements the per-code, per-account claim state machine:
// unclaimed, then locked while a claim is in flight, then resolved for good.
package claim

import (
	"errors"
	"time"
)

// ErrInvalidResult is returned for a result that is neither success nor rejected
var ErrInvalidResult = errors.New("invalid claim result")

// Result is the terminal result of a claim.
type Result string

const (
	ResultSuccess  Result = "success"
	ResultRejected Result = "rejected"
)

// IsValid reports whether r is a known result.
func (r Result) IsValid() bool {
	return r == ResultSuccess || r == ResultRejected
}

// ResultFromBool maps a success flag to a Result.
func ResultFromBool(success bool) Result {
	if success {
		return ResultSuccess
	}
	return ResultRejected
}

// Key identifies one code for one account.
type Key struct {
	Token     string
	AccountID string
}

// Outcome is the recorded resolution of a claim.
type Outcome struct {
	Token      string
	AccountID  string
	Result     Result
	Reason     string
	ResolvedAt time.Time
}

// Succeeded reports whether the claim was accepted.
func (o Outcome) Succeeded() bool {
	return o.Result == ResultSuccess
}
