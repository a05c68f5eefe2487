package errors

import (
	stderrors "errors"
	"fmt"
)

// ExitCode is the process status reported to the operator.
type ExitCode int

const (
	ExitOK      ExitCode = 0
	ExitFailure ExitCode = 1

	ExitMissingSenderAccount       ExitCode = 1
	ExitFixFreeBalanceWrongRegime  ExitCode = 2
	ExitUpgradeAccountsWrongRegime ExitCode = 3
)

// PreconditionError stops a run before any work is attempted.
type PreconditionError struct {
	Code    ExitCode `json:"code"`
	Message string   `json:"message"`
}

// Error implements the error interface
func (e *PreconditionError) Error() string {
	return e.Message
}

// NewPrecondition creates a new PreconditionError and returns it as error interface
func NewPrecondition(code ExitCode, format string, args ...interface{}) error {
	return &PreconditionError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return stderrors.As(err, &pe)
}

// CodeOf maps an error returned from a run to its exit status.
func CodeOf(err error) ExitCode {
	if err == nil {
		return ExitOK
	}
	var pe *PreconditionError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ExitFailure
}
