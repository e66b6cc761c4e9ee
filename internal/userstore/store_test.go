package userstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "users.json"))
}

func sampleProfile(n string) Profile {
	return Profile{
		PersonalEmail: n + "@x.com",
		FirstName:     "First" + n,
		LastName:      "Last" + n,
		Email:         n + "@inst.edu",
		Phone:         "555-" + n,
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	s := testStore(t)

	if _, err := s.Get("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on missing file = %v, want ErrNotFound", err)
	}
	records, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("List = %v, want empty", records)
	}
}

func TestRoundTrip(t *testing.T) {
	s := testStore(t)

	names := []string{"a", "b", "c"}
	for _, n := range names {
		if err := s.Put(n, sampleProfile(n)); err != nil {
			t.Fatalf("Put(%s): %v", n, err)
		}
	}

	for _, n := range names {
		got, err := s.Get(n)
		if err != nil {
			t.Fatalf("Get(%s): %v", n, err)
		}
		if got != sampleProfile(n) {
			t.Errorf("Get(%s) = %+v", n, got)
		}
	}

	if err := s.Delete("b"); err != nil {
		t.Fatalf("Delete(b): %v", err)
	}
	if _, err := s.Get("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(b) after delete = %v, want ErrNotFound", err)
	}
	// The others are untouched
	for _, n := range []string{"a", "c"} {
		if got, err := s.Get(n); err != nil || got != sampleProfile(n) {
			t.Errorf("Get(%s) after delete = %+v, %v", n, got, err)
		}
	}
}

func TestPutReplaces(t *testing.T) {
	s := testStore(t)

	if err := s.Put("u", sampleProfile("u")); err != nil {
		t.Fatal(err)
	}
	updated := sampleProfile("u")
	updated.Phone = "555-9999"
	if err := s.Put("u", updated); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get("u")
	if err != nil {
		t.Fatal(err)
	}
	if got.Phone != "555-9999" {
		t.Errorf("Phone = %q", got.Phone)
	}
	records, _ := s.List()
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

func TestDeleteMissing(t *testing.T) {
	s := testStore(t)
	if err := s.Delete("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(ghost) = %v, want ErrNotFound", err)
	}
}

func TestFileLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	s := NewStore(path)

	if err := s.Put("ann", Profile{
		PersonalEmail: "a@x.com",
		FirstName:     "Ann",
		LastName:      "Lee",
		Email:         "a@inst.edu",
		Phone:         "555-1234",
	}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("file is not a JSON array: %v", err)
	}
	if raw[0]["username"] != "ann" {
		t.Errorf("username = %v", raw[0]["username"])
	}
	userData, ok := raw[0]["user_data"].(map[string]any)
	if !ok {
		t.Fatalf("user_data = %T", raw[0]["user_data"])
	}
	for _, key := range []string{"personal_email", "first_name", "last_name", "email", "phone"} {
		if _, ok := userData[key]; !ok {
			t.Errorf("user_data missing key %q", key)
		}
	}
}

func TestCorruptFileIsStoreFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path)
	_, err := s.Get("anyone")
	if err == nil {
		t.Fatal("expected error on corrupt file")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("corrupt file must not read as ErrNotFound")
	}
}

func TestSnapshotNeverTruncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	s := NewStore(path)

	if err := s.Put("a", sampleProfile("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("b", sampleProfile("b")); err != nil {
		t.Fatal(err)
	}

	// The visible file is always a complete snapshot; no temp files linger.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "users.json" {
		t.Errorf("dir entries = %v", entries)
	}
	data, _ := os.ReadFile(path)
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("snapshot not parseable: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2", len(records))
	}
}
