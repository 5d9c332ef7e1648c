package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry is one queue command of a run, stored as a JSON line in
// trace.jsonl.
type TraceEntry struct {
	// Seq numbers the commands of a run starting at 1
	Seq int `json:"seq"`

	// Op is the command kind: write, read or execute
	Op string `json:"op"`

	Kernel   string        `json:"kernel,omitempty"`
	Bytes    int           `json:"bytes,omitempty"`
	Threads  uint64        `json:"threads,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

func tracePath(baseDir, id string) string {
	return filepath.Join(runDir(baseDir, id), "trace.jsonl")
}

// TraceWriter appends trace entries to a run's JSONL file. It buffers
// writes and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	seq    int
}

// NewTraceWriter opens <baseDir>/runs/<id>/trace.jsonl, truncating it
// unless appendMode is set.
func NewTraceWriter(baseDir, id string, appendMode bool) (*TraceWriter, error) {
	if err := os.MkdirAll(runDir(baseDir, id), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := tracePath(baseDir, id)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write buffers entry. A zero Seq is replaced by the next sequence number.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.seq++
	if entry.Seq == 0 {
		entry.Seq = tw.seq
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a run's JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of run id.
func NewTraceReader(baseDir, id string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &TraceReader{file: file, scanner: scanner}, nil
}

// Read returns the next entry, or io.EOF when none remain. Blank lines are
// skipped.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	for tr.scanner.Scan() {
		line := tr.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry TraceEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
		}
		return &entry, nil
	}
	if err := tr.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan trace line: %w", err)
	}
	return nil, io.EOF
}

// ReadAll reads all remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace of run id. A missing trace is not an error.
func DeleteTrace(baseDir, id string) error {
	err := os.Remove(tracePath(baseDir, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
