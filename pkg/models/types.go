package models

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by constructor validation failures
var (
	ErrInvalidTask   = errors.New("invalid task")
	ErrInvalidNode   = errors.New("invalid fog node")
	ErrInvalidBroker = errors.New("invalid broker parameters")
)

// PlacementOutcome is the result code of placing one task on a primary/backup pair
type PlacementOutcome int

const (
	OutcomeBackupRejected  PlacementOutcome = -1 // primary admitted, backup full, primary rolled back
	OutcomePrimaryRejected PlacementOutcome = 0
	OutcomeAccepted        PlacementOutcome = 1
)

func (o PlacementOutcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomePrimaryRejected:
		return "primary_rejected"
	case OutcomeBackupRejected:
		return "backup_rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// ParsePlacementOutcome converts the string form back to an outcome
func ParsePlacementOutcome(s string) (PlacementOutcome, error) {
	switch s {
	case "accepted":
		return OutcomeAccepted, nil
	case "primary_rejected":
		return OutcomePrimaryRejected, nil
	case "backup_rejected":
		return OutcomeBackupRejected, nil
	}
	return 0, fmt.Errorf("unknown placement outcome %q", s)
}

// DrainPolicy selects which queues a node drains at the end of a run
type DrainPolicy string

const (
	// DrainBoth drains the primary queue then the backup queue
	DrainBoth DrainPolicy = "both"
	// DrainBackupFirst drains only the backup queue when it holds tasks,
	// otherwise the primary queue
	DrainBackupFirst DrainPolicy = "backup_first"
)

// Valid reports whether the policy is known
func (p DrainPolicy) Valid() bool {
	return p == DrainBoth || p == DrainBackupFirst
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s",
		ve.Field, ve.Value, ve.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", ve[0].Error(), len(ve)-1)
}

// HasErrors returns true if there are validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field string, value interface{}, message string) {
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// AddIf adds a validation error if the condition is true
func (ve *ValidationErrors) AddIf(condition bool, field string, value interface{}, message string) {
	if condition {
		ve.Add(field, value, message)
	}
}

// Err wraps the collected errors with sentinel, or returns nil when there are none
func (ve ValidationErrors) Err(sentinel error) error {
	if !ve.HasErrors() {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel, ve)
}
