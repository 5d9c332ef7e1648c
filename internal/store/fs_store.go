package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSStore implements Store on the filesystem. Records live in
// <baseDir>/runs/<id>/record.json next to the run's trace.jsonl.
//
// Writes go through a temp file and rename, so concurrent readers never see
// a partial record.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir is the root directory of the store.
func (s *FSStore) BaseDir() string { return s.baseDir }

func runDir(baseDir, id string) string {
	return filepath.Join(baseDir, "runs", id)
}

func (s *FSStore) recordPath(id string) string {
	return filepath.Join(runDir(s.baseDir, id), "record.json")
}

// SaveRecord validates r and writes it atomically.
func (s *FSStore) SaveRecord(r *Record) error {
	if r == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := r.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(runDir(s.baseDir, r.ID), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	finalPath := s.recordPath(r.ID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp record file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename record file: %w", err)
	}

	slog.Debug("Run record saved", "id", r.ID, "path", finalPath)
	return nil
}

// LoadRecord retrieves the record with the given ID.
func (s *FSStore) LoadRecord(id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("id cannot be empty")
	}

	path := s.recordPath(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}
	return &r, nil
}

// ListRecords returns metadata for all readable records, oldest first.
// Unreadable records are logged and skipped.
func (s *FSStore) ListRecords() ([]RecordInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "runs"))
	if errors.Is(err, fs.ErrNotExist) {
		return []RecordInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []RecordInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if _, err := os.Stat(s.recordPath(id)); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		r, err := s.LoadRecord(id)
		if err != nil {
			slog.Warn("Failed to load run record for listing", "id", id, "err", err)
			continue
		}
		infos = append(infos, r.ToInfo())
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Timestamp.Before(infos[j].Timestamp)
	})
	slog.Debug("Listed run records", "count", len(infos))
	return infos, nil
}

// DeleteRecord removes the run directory with its record and trace.
func (s *FSStore) DeleteRecord(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}

	dir := runDir(s.baseDir, id)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Run record deleted", "id", id, "path", dir)
	return nil
}

// RunSize is the total size of the files stored for a run.
func (s *FSStore) RunSize(id string) (int64, error) {
	var total int64
	err := filepath.WalkDir(runDir(s.baseDir, id), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, &NotFoundError{ID: id}
	}
	return total, err
}

var _ Store = (*FSStore)(nil)
