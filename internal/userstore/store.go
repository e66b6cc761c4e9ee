// Package userstore persists traveler profiles in a flat JSON file, one
// record per chat identity. Every mutation rewrites the whole file as an
// atomic snapshot.
package userstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when no profile is registered for an identity.
// Callers distinguish it from I/O failures so users are only told to
// re-register when the record is actually missing.
var ErrNotFound = errors.New("user not found")

// Profile is one traveler's booking data. The JSON field names are the
// persisted file layout and must not change.
type Profile struct {
	PersonalEmail string `json:"personal_email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"` // institutional email, receives the ticket
	Phone         string `json:"phone"`
}

// String renders the profile for chat display.
func (p Profile) String() string {
	return fmt.Sprintf("First Name: %s\nLast Name: %s\nEmail: %s\nPersonal Email: %s\nPhone: %s",
		p.FirstName, p.LastName, p.Email, p.PersonalEmail, p.Phone)
}

// Record associates a chat identity with its profile.
type Record struct {
	Username string  `json:"username"`
	UserData Profile `json:"user_data"`
}

// Store reads and rewrites the profile file. Single in-process writer;
// mutations serialize on the mutex.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by the given file path. The file does not
// need to exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Get returns the profile registered for username.
func (s *Store) Get(username string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Profile{}, err
	}
	for _, r := range records {
		if r.Username == username {
			return r.UserData, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, username)
}

// Put registers or replaces the profile for username.
func (s *Store) Put(username string, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i, r := range records {
		if r.Username == username {
			records[i].UserData = p
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, Record{Username: username, UserData: p})
	}
	return s.save(records)
}

// Delete removes the profile for username. Returns ErrNotFound if absent.
func (s *Store) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	kept := records[:0]
	found := false
	for _, r := range records {
		if r.Username == username {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	return s.save(kept)
}

// List returns all records.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load reads the whole file. A missing file is an empty store.
func (s *Store) load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("userstore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("userstore: parse %s: %w", s.path, err)
	}
	return records, nil
}

// save writes a complete new snapshot: temp file in the same directory,
// fsync, then rename over the old file. Readers never observe a truncated
// store.
func (s *Store) save(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("userstore: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return fmt.Errorf("userstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("userstore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("userstore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("userstore: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("userstore: chmod: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("userstore: rename: %w", err)
	}
	return nil
}
