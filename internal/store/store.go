// Package store persists dispatch run records and their command traces.
package store

// Store defines the interface for run record persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the record doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecord atomically saves a record, overwriting any record with the
	// same ID.
	SaveRecord(r *Record) error

	// LoadRecord retrieves the record with the given ID.
	LoadRecord(id string) (*Record, error)

	// ListRecords returns metadata for all stored records, oldest first.
	ListRecords() ([]RecordInfo, error)

	// DeleteRecord removes the record and its trace.
	DeleteRecord(id string) error
}

// ErrNotFound is returned when a requested record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing record error.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "run not found: " + e.ID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
