package model

import "github.com/pkg/errors"

var (
	// ErrNotFound is returned when an asset, its parent or a link source does not exist.
	ErrNotFound = errors.New("asset not found")

	// ErrIntegrity is returned when an operation would break a hierarchy or link constraint.
	ErrIntegrity = errors.New("asset integrity violation")

	// ErrActivationDenied is returned when the licensing policy refuses an activation.
	ErrActivationDenied = errors.New("asset activation denied")

	// ErrStorage is returned for transaction or connectivity failures in the asset store.
	ErrStorage = errors.New("asset store error")

	// ErrActivationService is returned when the activation service is unreachable or fails.
	ErrActivationService = errors.New("activation service error")

	ErrCreation      = errors.New("asset could not be created")
	ErrUpdate        = errors.New("asset could not be updated")
	ErrRemoval       = errors.New("asset could not be removed")
	ErrAlreadyExists = errors.New("asset already exists")

	// ErrReactivation is returned alongside a removal error when the asset
	// deactivated for the removal could not be activated again,
	// local and external status may have diverged.
	ErrReactivation = errors.New("asset could not be reactivated")
)

// OperationError is returned by a failed lifecycle operation,
// errors.Is matches both the operation error and its cause.
type OperationError struct {
	Op    error
	Cause error
}

// WrapOp returns an OperationError for the operation error and its cause.
func WrapOp(op, cause error) error {
	return &OperationError{Op: op, Cause: cause}
}

func (e *OperationError) Error() string {
	return e.Op.Error() + ": " + e.Cause.Error()
}

func (e *OperationError) Unwrap() []error {
	return []error{e.Op, e.Cause}
}
