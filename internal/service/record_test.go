package service

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/templui/fintrack/internal/db"
	"github.com/templui/fintrack/internal/model"
	"github.com/templui/fintrack/internal/repository"
	"github.com/templui/fintrack/internal/storage"
	"github.com/templui/fintrack/internal/validation"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR fake image body")

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Init("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("db.Init() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	err = db.RunMigrations(database.DB, "sqlite")
	if err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	return database
}

func createUser(t *testing.T, database *sqlx.DB, id string) {
	t.Helper()

	err := repository.NewUserRepository(database).Create(&model.User{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: "unused",
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

type fixture struct {
	db      *sqlx.DB
	repo    repository.RecordRepository
	storage *storage.LocalStorage
	service *RecordService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database := newTestDB(t)
	createUser(t, database, "alice")
	createUser(t, database, "bob")

	files, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	repo := repository.NewRecordRepository(database, model.KindExpense)

	return &fixture{
		db:      database,
		repo:    repo,
		storage: files,
		service: NewRecordService(model.KindExpense, repo, files, "USD", 1<<20),
	}
}

func (f *fixture) create(t *testing.T, userID string, input RecordInput) *model.Record {
	t.Helper()

	record, err := f.service.Create(userID, input)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return record
}

func withReceipt(name string) RecordInput {
	return RecordInput{
		Title:      "Groceries",
		Amount:     "12.30",
		Attachment: &Upload{Filename: name, Data: pngData},
	}
}

func isValidationError(err error) bool {
	_, ok := validation.AsError(err)
	return ok
}

// failingStorage fails every write
type failingStorage struct {
	storage.Storage
}

func (failingStorage) Save(string, []byte) error {
	return errors.New("disk full")
}

func TestCreate_WithoutAttachment(t *testing.T) {
	f := newFixture(t)

	record := f.create(t, "alice", RecordInput{Title: "Dinner for Two", Amount: "42.50", Description: ""})

	if !record.Amount.Equal(decimal.RequireFromString("42.50")) {
		t.Errorf("Amount = %s, want 42.50", record.Amount)
	}
	if record.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", record.UserID)
	}
	if record.Attachment != nil {
		t.Errorf("Attachment = %q, want nil", *record.Attachment)
	}
	if record.CurrencyCode != "USD" {
		t.Errorf("CurrencyCode = %q, want USD", record.CurrencyCode)
	}

	stored, err := f.service.ByID("alice", record.ID)
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if !stored.Amount.Equal(record.Amount) || stored.Title != "Dinner for Two" {
		t.Errorf("stored record = %+v, want title and amount of created one", stored)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input RecordInput
	}{
		{"empty title", RecordInput{Title: "", Amount: "10"}},
		{"missing amount", RecordInput{Title: "x"}},
		{"amount not a number", RecordInput{Title: "x", Amount: "not-a-number"}},
		{"NaN amount", RecordInput{Title: "x", Amount: "NaN"}},
		{"unknown currency", RecordInput{Title: "x", Amount: "1", CurrencyCode: "ABCD"}},
		{"empty attachment", RecordInput{Title: "x", Amount: "1", Attachment: &Upload{Filename: "receipt.png"}}},
		{"attachment too large", RecordInput{Title: "x", Amount: "1", Attachment: &Upload{Filename: "scan.tiff", Data: make([]byte, 1<<20+1)}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.service.Create("alice", tc.input)
			if !isValidationError(err) {
				t.Fatalf("Create() error = %v, want validation error", err)
			}

			records, err := f.service.Records("alice", "")
			if err != nil {
				t.Fatalf("Records() error = %v", err)
			}
			if len(records) != 0 {
				t.Errorf("Records() returned %d records, want none", len(records))
			}
		})
	}
}

func TestCreate_WithAttachmentRoundTrip(t *testing.T) {
	f := newFixture(t)

	record := f.create(t, "alice", withReceipt("receipt.png"))
	if record.Attachment == nil || *record.Attachment != "receipt.png" {
		t.Fatalf("Attachment = %v, want receipt.png", record.Attachment)
	}

	file, redirect, err := f.service.ResolveAttachment("alice", record.ID, "receipt.png")
	if err != nil {
		t.Fatalf("ResolveAttachment() error = %v", err)
	}
	if redirect != "" {
		t.Fatalf("ResolveAttachment() redirect = %q, want none", redirect)
	}
	if !bytes.Equal(file.Data, pngData) {
		t.Errorf("attachment content differs from upload")
	}
	if file.ContentType != "image/png" || !file.Inline {
		t.Errorf("file served as %q inline=%v, want image/png inline", file.ContentType, file.Inline)
	}
}

func TestCreate_AnyFileTypeIsServedAsDownload(t *testing.T) {
	testCases := []struct {
		filename string
		data     []byte
	}{
		{"statement.csv", []byte("date,amount\n2026-03-01,12.30\n")},
		{"IMG_0042.HEIC", []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00")},
		{"receipt.png", []byte("<html><script>alert(1)</script></html>")},
		{"run.sh", []byte("#!/bin/sh\necho paid\n")},
	}

	for _, tc := range testCases {
		t.Run(tc.filename, func(t *testing.T) {
			f := newFixture(t)

			record := f.create(t, "alice", RecordInput{
				Title:      "Imported",
				Amount:     "1",
				Attachment: &Upload{Filename: tc.filename, Data: tc.data},
			})

			file, _, err := f.service.ResolveAttachment("alice", record.ID, tc.filename)
			if err != nil {
				t.Fatalf("ResolveAttachment() error = %v", err)
			}
			if file.Inline {
				t.Errorf("%s served inline", tc.filename)
			}
			if file.ContentType != "application/octet-stream" {
				t.Errorf("ContentType = %q, want application/octet-stream", file.ContentType)
			}
			if !bytes.Equal(file.Data, tc.data) {
				t.Errorf("attachment content differs from upload")
			}
		})
	}
}

func TestCreate_StorageFailureCreatesNoRecord(t *testing.T) {
	f := newFixture(t)
	s := NewRecordService(model.KindExpense, f.repo, failingStorage{f.storage}, "USD", 1<<20)

	_, err := s.Create("alice", withReceipt("receipt.png"))
	if err == nil {
		t.Fatal("Create() error = nil, want storage failure")
	}
	if isValidationError(err) {
		t.Errorf("Create() error = %v, want an I/O failure", err)
	}

	records, err := f.service.Records("alice", "")
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Records() returned %d records, want none", len(records))
	}
}

func TestUpdate_NotOwnedBehavesLikeMissing(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, "bob", RecordInput{Title: "Rent", Amount: "900"})

	input := withReceipt("sneaky.png")

	_, errOther := f.service.Update("alice", record.ID, input)
	_, errMissing := f.service.Update("alice", "does-not-exist", input)

	if !errors.Is(errOther, repository.ErrRecordNotFound) {
		t.Errorf("Update(other owner) error = %v, want ErrRecordNotFound", errOther)
	}
	if !errors.Is(errMissing, repository.ErrRecordNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrRecordNotFound", errMissing)
	}
	if errOther.Error() != errMissing.Error() {
		t.Errorf("errors differ: %q vs %q", errOther, errMissing)
	}

	// Nothing was written for a record the caller does not own
	if _, err := f.storage.Read("sneaky.png"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("attachment was stored for a foreign record: %v", err)
	}

	unchanged, err := f.service.ByID("bob", record.ID)
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if unchanged.Title != "Rent" {
		t.Errorf("Title = %q, want Rent", unchanged.Title)
	}
}

func TestUpdate_ReplacesFieldsAndKeepsAttachment(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, "alice", withReceipt("receipt.png"))

	updated, err := f.service.Update("alice", record.ID, RecordInput{
		Title:        "Groceries (shared)",
		Description:  "split with Bob",
		Amount:       "6.15",
		CurrencyCode: "eur",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stored, err := f.service.ByID("alice", record.ID)
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if stored.Title != "Groceries (shared)" || stored.Description != "split with Bob" || stored.CurrencyCode != "EUR" {
		t.Errorf("stored record = %+v", stored)
	}
	if !stored.Amount.Equal(decimal.RequireFromString("6.15")) {
		t.Errorf("Amount = %s, want 6.15", stored.Amount)
	}
	if !stored.HasAttachment() || *stored.Attachment != "receipt.png" {
		t.Errorf("Attachment = %v, want receipt.png kept", stored.Attachment)
	}
	if updated.UpdatedAt.Before(record.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, before creation time %v", updated.UpdatedAt, record.UpdatedAt)
	}
}

func TestUpdate_NewAttachmentLeavesPreviousFile(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, "alice", withReceipt("old.png"))

	input := withReceipt("new.png")
	_, err := f.service.Update("alice", record.ID, input)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stored, err := f.service.ByID("alice", record.ID)
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if *stored.Attachment != "new.png" {
		t.Errorf("Attachment = %q, want new.png", *stored.Attachment)
	}
	if _, err := f.storage.Read("new.png"); err != nil {
		t.Errorf("new attachment missing: %v", err)
	}
	// Previous file becomes an orphan, it is not removed by updates
	if _, err := f.storage.Read("old.png"); err != nil {
		t.Errorf("previous attachment was removed: %v", err)
	}
}

// racingRepo lets a test run code between the ownership check and the write of an update
type racingRepo struct {
	repository.RecordRepository
	beforeUpdate func()
}

func (r *racingRepo) Update(record *model.Record) (*model.Record, error) {
	r.beforeUpdate()
	return r.RecordRepository.Update(record)
}

func TestUpdate_ConcurrentRemovalLeavesNoDanglingPointer(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, "alice", withReceipt("receipt.png"))

	repo := &racingRepo{RecordRepository: f.repo}
	repo.beforeUpdate = func() {
		if _, err := f.service.RemoveAttachment("alice", record.ID, "receipt.png"); err != nil {
			t.Fatalf("RemoveAttachment() error = %v", err)
		}
	}
	s := NewRecordService(model.KindExpense, repo, f.storage, "USD", 1<<20)

	updated, err := s.Update("alice", record.ID, RecordInput{Title: "renamed", Amount: "1"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "renamed" || updated.Attachment != nil {
		t.Errorf("Update() = %+v, want renamed without attachment", updated)
	}

	stored, err := f.service.ByID("alice", record.ID)
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if stored.Attachment != nil {
		_, err := f.storage.Read(*stored.Attachment)
		t.Errorf("Attachment = %q after removal (file read error: %v)", *stored.Attachment, err)
	}
}

func TestUpdate_StorageFailureKeepsPointer(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, "alice", withReceipt("receipt.png"))

	s := NewRecordService(model.KindExpense, f.repo, failingStorage{f.storage}, "USD", 1<<20)
	input := withReceipt("other.png")
	input.Title = "changed"
	_, err := s.Update("alice", record.ID, input)
	if err == nil {
		t.Fatal("Update() error = nil, want storage failure")
	}

	stored, err := f.service.ByID("alice", record.ID)
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if stored.Title != "Groceries" || *stored.Attachment != "receipt.png" {
		t.Errorf("record changed despite failed write: %+v", stored)
	}
}

func TestRemoveAttachment_Twice(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, "alice", withReceipt("receipt.png"))
	url := f.service.AttachmentPath(record.ID, "receipt.png")

	cleared, err := f.service.RemoveAttachment("alice", record.ID, url)
	if err != nil {
		t.Fatalf("first RemoveAttachment() error = %v", err)
	}
	if cleared.Attachment != nil {
		t.Errorf("Attachment = %q, want nil", *cleared.Attachment)
	}
	if _, err := f.storage.Read("receipt.png"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("file still stored after removal: %v", err)
	}

	_, err = f.service.RemoveAttachment("alice", record.ID, url)
	if !errors.Is(err, ErrNoAttachment) {
		t.Errorf("second RemoveAttachment() error = %v, want ErrNoAttachment", err)
	}
}

func TestRemoveAttachment_FileAlreadyGone(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, "alice", withReceipt("receipt.png"))

	if err := f.storage.Delete("receipt.png"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := f.service.RemoveAttachment("alice", record.ID, "receipt.png")
	if err != nil {
		t.Fatalf("RemoveAttachment() error = %v, want nil", err)
	}

	stored, err := f.service.ByID("alice", record.ID)
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if stored.Attachment != nil {
		t.Errorf("Attachment = %q, want nil", *stored.Attachment)
	}
}

func TestRemoveAttachment_Rejects(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, "alice", withReceipt("receipt.png"))

	_, err := f.service.RemoveAttachment("alice", record.ID, "")
	if !isValidationError(err) {
		t.Errorf("RemoveAttachment(empty) error = %v, want validation error", err)
	}

	_, err = f.service.RemoveAttachment("alice", record.ID, "/records/expense/x/attachments/")
	if !isValidationError(err) {
		t.Errorf("RemoveAttachment(no file segment) error = %v, want validation error", err)
	}

	_, err = f.service.RemoveAttachment("alice", record.ID, "other.png")
	if !isValidationError(err) {
		t.Errorf("RemoveAttachment(other name) error = %v, want validation error", err)
	}

	_, err = f.service.RemoveAttachment("bob", record.ID, "receipt.png")
	if !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("RemoveAttachment(other owner) error = %v, want ErrRecordNotFound", err)
	}

	if _, err := f.storage.Read("receipt.png"); err != nil {
		t.Errorf("file removed by a rejected request: %v", err)
	}
}

func TestDelete_RemovesRowAndFile(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, "alice", withReceipt("receipt.png"))

	deleted, err := f.service.Delete("alice", record.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted.ID != record.ID || *deleted.Attachment != "receipt.png" {
		t.Errorf("Delete() returned %+v", deleted)
	}

	if _, err := f.service.ByID("alice", record.ID); !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("ByID() after delete error = %v, want ErrRecordNotFound", err)
	}
	if _, err := f.storage.Read("receipt.png"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Read() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDelete_NotOwned(t *testing.T) {
	f := newFixture(t)
	record := f.create(t, "bob", withReceipt("receipt.png"))

	_, err := f.service.Delete("alice", record.ID)
	if !errors.Is(err, repository.ErrRecordNotFound) {
		t.Fatalf("Delete() error = %v, want ErrRecordNotFound", err)
	}

	if _, err := f.service.ByID("bob", record.ID); err != nil {
		t.Errorf("record of owner removed: %v", err)
	}
	if _, err := f.storage.Read("receipt.png"); err != nil {
		t.Errorf("file of owner removed: %v", err)
	}
}

func TestResolveAttachment(t *testing.T) {
	f := newFixture(t)
	withFile := f.create(t, "alice", withReceipt("receipt.png"))
	withoutFile := f.create(t, "alice", RecordInput{Title: "Coffee", Amount: "3"})

	for _, slug := range []string{"old.png", "../../etc/passwd", "receipt.PNG", ""} {
		file, redirect, err := f.service.ResolveAttachment("alice", withFile.ID, slug)
		if err != nil {
			t.Fatalf("ResolveAttachment(%q) error = %v", slug, err)
		}
		if file != nil {
			t.Errorf("ResolveAttachment(%q) served a file", slug)
		}
		want := "/records/expense/" + withFile.ID + "/attachments/receipt.png"
		if redirect != want {
			t.Errorf("ResolveAttachment(%q) redirect = %q, want %q", slug, redirect, want)
		}
	}

	_, _, err := f.service.ResolveAttachment("alice", withoutFile.ID, "receipt.png")
	if !errors.Is(err, ErrNoAttachment) {
		t.Errorf("ResolveAttachment(no attachment) error = %v, want ErrNoAttachment", err)
	}

	_, _, err = f.service.ResolveAttachment("bob", withFile.ID, "receipt.png")
	if !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("ResolveAttachment(other owner) error = %v, want ErrRecordNotFound", err)
	}

	if err := f.storage.Delete("receipt.png"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, _, err = f.service.ResolveAttachment("alice", withFile.ID, "receipt.png")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ResolveAttachment(missing file) error = %v, want storage.ErrNotFound", err)
	}
}

func TestLatest(t *testing.T) {
	f := newFixture(t)

	latest, err := f.service.Latest("alice")
	if err != nil || latest != nil {
		t.Fatalf("Latest() = %v, %v; want nil, nil", latest, err)
	}

	f.create(t, "alice", RecordInput{Title: "first", Amount: "1"})
	time.Sleep(5 * time.Millisecond)
	second := f.create(t, "alice", RecordInput{Title: "second", Amount: "2"})

	latest, err = f.service.Latest("alice")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Latest() = %q, want %q", latest.Title, second.Title)
	}
}

func TestRedirectTarget(t *testing.T) {
	s := NewRecordService(model.KindExpense, nil, nil, "USD", 1<<20)

	testCases := []struct {
		referer string
		want    string
	}{
		{"", "/records/expense"},
		{"http://localhost:8090/records/expense/abc-123", "/records/expense"},
		{"http://localhost:8090/records/expense/abc-123/attachments/receipt.png", "/records/expense"},
		{"http://localhost:8090/records/expense?q=dinner", "/records/expense?q=dinner"},
		{"/records", "/records"},
		{"https://evil.example/phish", "/phish"},
		{"//evil.example/phish", "/phish"},
		{"javascript:alert(1)", "/records/expense"},
		{"not a url\x7f", "/records/expense"},
	}

	for _, tc := range testCases {
		got := s.RedirectTarget(tc.referer, "abc-123")
		if got != tc.want {
			t.Errorf("RedirectTarget(%q) = %q, want %q", tc.referer, got, tc.want)
		}
	}
}

func TestParseIntent(t *testing.T) {
	for _, s := range []string{"update", "delete", "remove-attachment"} {
		intent, err := ParseIntent(s)
		if err != nil || string(intent) != s {
			t.Errorf("ParseIntent(%q) = %q, %v", s, intent, err)
		}
	}

	for _, s := range []string{"", "UPDATE", "archive"} {
		_, err := ParseIntent(s)
		if !errors.Is(err, ErrUnknownIntent) {
			t.Errorf("ParseIntent(%q) error = %v, want ErrUnknownIntent", s, err)
		}
	}
}
