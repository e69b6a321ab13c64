package interfaces

import (
	"context"

	"callboard/pkg/types"
)

// CallStore handles call persistence
// ARCHITECTURAL DISCOVERY: Single interface for the call table keyed by call id,
// with secondary lookups by class, school, parent and student
type CallStore interface {
	// CreateCall resolves the student's current class and school and inserts a
	// pending call. Returns types.ErrNotFound if the student or its class
	// assignment is missing.
	CreateCall(ctx context.Context, studentID, parentID string) (*types.Call, error)

	// GetCall returns the bare call row
	GetCall(ctx context.Context, callID string) (*types.Call, error)

	// GetCallDetail returns the call joined with student, parent, school and class
	GetCallDetail(ctx context.Context, callID string) (*types.CallDetail, error)

	// UpdateCallStatus applies a status change only if the stored row version
	// still equals expectedVersion. Returns types.ErrVersionConflict otherwise.
	UpdateCallStatus(ctx context.Context, callID string, expectedVersion int64, status types.CallStatus) (*types.Call, error)

	// ListCalls returns call details matching the filter
	ListCalls(ctx context.Context, filter types.CallFilter) ([]*types.CallDetail, error)

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}

// Directory exposes the tenant lookups the call core consumes
// FUNCTIONAL DISCOVERY: Ownership of schools, classes, students and relations
// stays with the tenant layer; the core only reads them
type Directory interface {
	// IsParentOf reports whether parentID is linked to studentID
	IsParentOf(ctx context.Context, parentID, studentID string) (bool, error)

	// GetStudentPlacement returns the student's school and current class.
	// Returns types.ErrNotFound for an unknown student.
	GetStudentPlacement(ctx context.Context, studentID string) (*types.StudentPlacement, error)

	// GetClass returns a class by id or types.ErrNotFound
	GetClass(ctx context.Context, classID string) (*types.Class, error)
}

// Notifier accepts broadcast envelopes for a channel
type Notifier interface {
	Notify(ctx context.Context, channel string, envelope *types.Envelope) error
}
