package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Output is the content of one buffer argument read back after a run.
type Output struct {
	// Index is the kernel argument the buffer was bound to
	Index uint32 `json:"index"`

	// Data holds the raw bytes read from the device
	Data []byte `json:"data"`
}

// Record is a persisted kernel dispatch: what ran, where, with which
// arguments, and what came back.
type Record struct {
	// ID is the unique identifier of the run
	ID string `json:"id"`

	// Kernel is the entry point that was executed
	Kernel string `json:"kernel"`

	// Source names where the kernel source came from, a file path or
	// "builtin:<name>"
	Source string `json:"source"`

	// Driver is the runtime that executed the kernel (opencl, hostsim)
	Driver string `json:"driver"`

	Platform string `json:"platform"`
	Device   string `json:"device"`

	// Threads is the one-dimensional global work size
	Threads uint64 `json:"threads"`

	// Args are the argument specs in index order, e.g. "i32=7" or "out=64"
	Args []string `json:"args"`

	// Outputs holds the buffers read back after execution
	Outputs []Output `json:"outputs,omitempty"`

	// Elapsed covers argument binding, execution and read-back
	Elapsed time.Duration `json:"elapsed"`

	// Error is set when the dispatch failed
	Error string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// RecordInfo is the listing view of a record without output data.
type RecordInfo struct {
	ID          string        `json:"id"`
	Kernel      string        `json:"kernel"`
	Device      string        `json:"device"`
	Threads     uint64        `json:"threads"`
	Elapsed     time.Duration `json:"elapsed"`
	Failed      bool          `json:"failed"`
	OutputBytes int           `json:"outputBytes"`
	Timestamp   time.Time     `json:"timestamp"`
}

// NewRecord starts a record for kernel with a fresh ID and the current time.
func NewRecord(kernel, source string, threads uint64, args []string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Kernel:    kernel,
		Source:    source,
		Threads:   threads,
		Args:      args,
		Timestamp: time.Now(),
	}
}

// ToInfo converts a full Record to RecordInfo.
func (r *Record) ToInfo() RecordInfo {
	n := 0
	for _, o := range r.Outputs {
		n += len(o.Data)
	}
	return RecordInfo{
		ID:          r.ID,
		Kernel:      r.Kernel,
		Device:      r.Device,
		Threads:     r.Threads,
		Elapsed:     r.Elapsed,
		Failed:      r.Error != "",
		OutputBytes: n,
		Timestamp:   r.Timestamp,
	}
}

// Validate checks if the record has valid data.
func (r *Record) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return &ValidationError{Field: "ID", Reason: "must be a UUID"}
	}
	if r.Kernel == "" {
		return &ValidationError{Field: "Kernel", Reason: "cannot be empty"}
	}
	if r.Threads == 0 {
		return &ValidationError{Field: "Threads", Reason: "must be positive"}
	}
	if r.Elapsed < 0 {
		return &ValidationError{Field: "Elapsed", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	for _, o := range r.Outputs {
		if int(o.Index) >= len(r.Args) {
			return &ValidationError{
				Field:  "Outputs",
				Reason: fmt.Sprintf("index %d out of range for %d args", o.Index, len(r.Args)),
			}
		}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
