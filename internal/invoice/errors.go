package invoice

import "errors"

var (
	ErrNotFound = errors.New("invoice not found")

	// ErrInvalidArgument covers malformed reconciliation input: duplicate part
	// ids in one desired set, negative counts where a positive value is
	// required, negative tax or labour values.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict is returned when creating a second invoice for an
	// appointment that already has one.
	ErrConflict = errors.New("appointment already has an invoice")
)
