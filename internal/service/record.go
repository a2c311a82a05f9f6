package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/templui/fintrack/internal/model"
	"github.com/templui/fintrack/internal/repository"
	"github.com/templui/fintrack/internal/storage"
	"github.com/templui/fintrack/internal/validation"
)

var (
	ErrNoAttachment  = errors.New("record has no attachment")
	ErrUnknownIntent = errors.New("unknown intent")
)

// Intent selects what a submission against an existing record does
type Intent string

const (
	IntentUpdate           Intent = "update"
	IntentDelete           Intent = "delete"
	IntentRemoveAttachment Intent = "remove-attachment"
)

func ParseIntent(s string) (Intent, error) {
	switch Intent(s) {
	case IntentUpdate, IntentDelete, IntentRemoveAttachment:
		return Intent(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIntent, s)
}

// RecordInput is a submission as received from the client, not yet validated
type RecordInput struct {
	Title        string
	Description  string
	Amount       string
	CurrencyCode string
	Attachment   *Upload // nil when no file was sent
}

// Upload is an attachment buffered in memory
type Upload struct {
	Filename string
	Data     []byte
}

// AttachmentFile is a stored attachment ready to be served
type AttachmentFile struct {
	Name        string
	ContentType string
	Inline      bool // false: the client must download it, never render it
	Data        []byte
}

// inlineTypes are the files a browser may render directly
var inlineTypes = []validation.FileConstraints{
	validation.ImageConstraints,
	validation.DocumentConstraints,
}

type recordFields struct {
	title        string
	description  string
	amount       decimal.Decimal
	currencyCode string
	attachment   string // empty when the submission carried no file
}

// RecordService manages records of one kind together with their attachment files.
// Files and rows are not covered by a shared transaction; operations are ordered so
// that a failure can leave an unreferenced file behind but never a row pointing at a
// missing file.
type RecordService struct {
	kind            model.Kind
	repo            repository.RecordRepository
	storage         storage.Storage
	defaultCurrency string
	maxUploadSize   int64
}

func NewRecordService(
	kind model.Kind,
	repo repository.RecordRepository,
	storage storage.Storage,
	defaultCurrency string,
	maxUploadSize int64,
) *RecordService {
	return &RecordService{
		kind:            kind,
		repo:            repo,
		storage:         storage,
		defaultCurrency: defaultCurrency,
		maxUploadSize:   maxUploadSize,
	}
}

func (s *RecordService) Kind() model.Kind {
	return s.kind
}

func (s *RecordService) ListPath() string {
	return "/records/" + string(s.kind)
}

func (s *RecordService) DetailPath(id string) string {
	return s.ListPath() + "/" + url.PathEscape(id)
}

func (s *RecordService) AttachmentPath(id, name string) string {
	return s.DetailPath(id) + "/attachments/" + url.PathEscape(name)
}

func (s *RecordService) ByID(userID, id string) (*model.Record, error) {
	return s.repo.ByID(userID, id)
}

func (s *RecordService) Records(userID, query string) ([]*model.Record, error) {
	return s.repo.Records(userID, query)
}

// Latest returns the most recently created record, or nil when the user has none
func (s *RecordService) Latest(userID string) (*model.Record, error) {
	record, err := s.repo.Latest(userID)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return nil, nil
	}
	return record, err
}

func (s *RecordService) validate(input RecordInput) (*recordFields, error) {
	title, err := validation.ValidateTitle(input.Title)
	if err != nil {
		return nil, err
	}

	description, err := validation.ValidateDescription(input.Description)
	if err != nil {
		return nil, err
	}

	amount, err := validation.ParseAmount(input.Amount)
	if err != nil {
		return nil, err
	}

	currencyCode, err := validation.ValidateCurrency(input.CurrencyCode, s.defaultCurrency)
	if err != nil {
		return nil, err
	}

	fields := &recordFields{
		title:        title,
		description:  description,
		amount:       amount,
		currencyCode: currencyCode,
	}

	if input.Attachment != nil {
		name, err := validation.AttachmentName(input.Attachment.Filename)
		if err != nil {
			return nil, err
		}

		err = validation.ValidateAttachment(input.Attachment.Data, s.maxUploadSize)
		if err != nil {
			return nil, err
		}

		fields.attachment = name
	}

	return fields, nil
}

// Create validates the submission, stores the attachment (if any) and only then
// inserts the row. A failed file write means no row is created.
func (s *RecordService) Create(userID string, input RecordInput) (*model.Record, error) {
	fields, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	var attachment *string
	if fields.attachment != "" {
		err = s.storage.Save(fields.attachment, input.Attachment.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}
		attachment = &fields.attachment
	}

	now := time.Now().UTC()
	record := &model.Record{
		ID:           uuid.New().String(),
		UserID:       userID,
		Title:        fields.title,
		Description:  fields.description,
		Amount:       fields.amount,
		CurrencyCode: fields.currencyCode,
		Attachment:   attachment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.repo.Create(record)
	if err != nil {
		// The stored file stays: the name may be shared with another record
		if attachment != nil {
			slog.Warn("record insert failed after attachment was stored", "kind", s.kind, "attachment", *attachment)
		}
		return nil, fmt.Errorf("failed to create %s: %w", s.kind, err)
	}

	return record, nil
}

// Update replaces title, description, amount and currency. A new attachment is
// written before the row points at it; the previously referenced file is kept.
// Without a new file the stored pointer is left untouched.
func (s *RecordService) Update(userID, id string, input RecordInput) (*model.Record, error) {
	fields, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	// Verify ownership before touching storage
	_, err = s.repo.ByID(userID, id)
	if err != nil {
		return nil, err
	}

	changes := &model.Record{
		ID:           id,
		UserID:       userID,
		Title:        fields.title,
		Description:  fields.description,
		Amount:       fields.amount,
		CurrencyCode: fields.currencyCode,
	}

	if fields.attachment != "" {
		err = s.storage.Save(fields.attachment, input.Attachment.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}
		changes.Attachment = &fields.attachment
	}

	return s.repo.Update(changes)
}

// RemoveAttachment clears the record's attachment pointer and then deletes the file.
// attachmentURL is the URL (or path) the client knows the attachment by.
func (s *RecordService) RemoveAttachment(userID, id, attachmentURL string) (*model.Record, error) {
	name, err := validation.AttachmentNameFromURL(attachmentURL)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.ByID(userID, id)
	if err != nil {
		return nil, err
	}

	if !record.HasAttachment() {
		return nil, ErrNoAttachment
	}

	if *record.Attachment != name {
		return nil, &validation.Error{Field: "attachmentUrl", Message: "attachment does not belong to this record"}
	}

	record, err = s.repo.ClearAttachment(userID, id, name)
	if errors.Is(err, repository.ErrRecordNotFound) {
		// Pointer changed between lookup and update
		return nil, ErrNoAttachment
	}
	if err != nil {
		return nil, err
	}

	s.deleteFile(name)

	return record, nil
}

// Delete removes the row first and the attachment file afterwards.
func (s *RecordService) Delete(userID, id string) (*model.Record, error) {
	record, err := s.repo.Delete(userID, id)
	if err != nil {
		return nil, err
	}

	if record.HasAttachment() {
		s.deleteFile(*record.Attachment)
	}

	return record, nil
}

// deleteFile removes an attachment that no row references anymore. A failure only
// leaves an orphaned file, so it is logged and otherwise ignored.
func (s *RecordService) deleteFile(name string) {
	err := s.storage.Delete(name)
	if err != nil {
		slog.Error("failed to delete attachment from storage", "error", err, "kind", s.kind, "attachment", name)
	}
}

// ResolveAttachment returns the attachment stored on a record when slug is its
// canonical name. For any other slug it returns the canonical path to redirect to
// and reads nothing.
func (s *RecordService) ResolveAttachment(userID, id, slug string) (*AttachmentFile, string, error) {
	record, err := s.repo.ByID(userID, id)
	if err != nil {
		return nil, "", err
	}

	if !record.HasAttachment() {
		return nil, "", ErrNoAttachment
	}

	name := *record.Attachment
	if slug != name {
		return nil, s.AttachmentPath(id, name), nil
	}

	data, err := s.storage.Read(name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read attachment: %w", err)
	}

	file := &AttachmentFile{
		Name:        name,
		ContentType: "application/octet-stream",
		Data:        data,
	}
	if validation.Inline(name, data, inlineTypes...) {
		file.Inline = true
		file.ContentType = validation.ContentType(name, data)
	}

	return file, "", nil
}

// RedirectTarget decides where to send the client after a record was changed or
// deleted. It returns the referring page (path and query only) unless that page is
// about the record itself, in which case the listing is used.
func (s *RecordService) RedirectTarget(referer, id string) string {
	listPath := s.ListPath()

	if referer == "" {
		return listPath
	}

	u, err := url.Parse(referer)
	if err != nil {
		return listPath
	}

	target := u.EscapedPath()
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return listPath
	}

	if strings.Contains(target, id) {
		return listPath
	}

	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}

	return target
}
