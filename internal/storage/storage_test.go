package storage

import (
	"bytes"
	"errors"
	"testing"
)

// testStorage checks the behaviour every Storage backend shares
func testStorage(t *testing.T, s Storage) {
	t.Helper()

	t.Run("save and read", func(t *testing.T) {
		want := []byte("\x89PNG receipt bytes")
		if err := s.Save("receipt.png", want); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := s.Read("receipt.png")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Read() = %q, want %q", got, want)
		}
	})

	t.Run("names with spaces", func(t *testing.T) {
		if err := s.Save("pay slip 03.pdf", []byte("%PDF-1.7")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := s.Read("pay slip 03.pdf")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if string(got) != "%PDF-1.7" {
			t.Errorf("Read() = %q", got)
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		if err := s.Save("notes.txt", []byte("first")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := s.Save("notes.txt", []byte("second")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := s.Read("notes.txt")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if string(got) != "second" {
			t.Errorf("Read() = %q, want %q", got, "second")
		}
	})

	t.Run("read missing", func(t *testing.T) {
		_, err := s.Read("missing.pdf")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Read() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		if err := s.Save("gone.png", []byte("x")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := s.Delete("gone.png"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := s.Delete("gone.png"); err != nil {
			t.Errorf("second Delete() error = %v, want nil", err)
		}
		if _, err := s.Read("gone.png"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Read() after Delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("rejects path names", func(t *testing.T) {
		for _, name := range []string{"", ".", "..", "../secret.txt", "a/b.txt", `..\secret.txt`} {
			if _, err := s.Read(name); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Read(%q) error = %v, want ErrInvalidName", name, err)
			}
			if err := s.Save(name, []byte("x")); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Save(%q) error = %v, want ErrInvalidName", name, err)
			}
			if err := s.Delete(name); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Delete(%q) error = %v, want ErrInvalidName", name, err)
			}
		}
	})
}
