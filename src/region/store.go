package region

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
)

// Store persists the main region as a single JSON record.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load reads the persisted main region. Any problem with the file, including
// absence, is reported as ErrNotFound so callers fall back to selection.
func (s *Store) Load() (Set, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Set{}, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return Set{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	// Pointers distinguish a missing field from a zero coordinate.
	var rec struct {
		Left   *int `json:"left"`
		Top    *int `json:"top"`
		Right  *int `json:"right"`
		Bottom *int `json:"bottom"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return Set{}, fmt.Errorf("%w: malformed record: %v", ErrNotFound, err)
	}
	if rec.Left == nil || rec.Top == nil || rec.Right == nil || rec.Bottom == nil {
		return Set{}, fmt.Errorf("%w: record is missing coordinates", ErrNotFound)
	}

	r := Region{Left: *rec.Left, Top: *rec.Top, Right: *rec.Right, Bottom: *rec.Bottom}
	if err := r.Validate(); err != nil {
		return Set{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return NewSet(r), nil
}

// Save replaces the persisted record with r. Invalid rectangles are refused.
func (s *Store) Save(r Region) error {
	if err := r.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode region: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".region-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write region: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace region file: %w", err)
	}

	log.Printf("Region: saved main region %s to %s", r, s.path)
	return nil
}
