package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/templui/fintrack/internal/ctxkeys"
	"github.com/templui/fintrack/internal/service"
)

// formOverhead is the room left for regular form fields next to the attachment
const formOverhead = 1 << 20

type RecordHandler struct {
	recordService *service.RecordService
	maxUploadSize int64
}

func NewRecordHandler(recordService *service.RecordService, maxUploadSize int64) *RecordHandler {
	return &RecordHandler{
		recordService: recordService,
		maxUploadSize: maxUploadSize,
	}
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	records, err := h.recordService.Records(user.ID, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *RecordHandler) Show(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	record, err := h.recordService.ByID(user.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	input, ok := h.parseSubmission(w, r)
	if !ok {
		return
	}

	record, err := h.recordService.Create(user.ID, input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.Redirect(w, r, h.recordService.DetailPath(record.ID), http.StatusFound)
}

// Action dispatches a submission against an existing record on its intent field
func (h *RecordHandler) Action(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	id := r.PathValue("id")

	input, ok := h.parseSubmission(w, r)
	if !ok {
		return
	}

	intent, err := service.ParseIntent(r.PostFormValue("intent"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch intent {
	case service.IntentUpdate:
		_, err = h.recordService.Update(user.ID, id, input)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case service.IntentRemoveAttachment:
		_, err = h.recordService.RemoveAttachment(user.ID, id, r.PostFormValue("attachmentUrl"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case service.IntentDelete:
		_, err = h.recordService.Delete(user.ID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		http.Redirect(w, r, h.recordService.RedirectTarget(r.Referer(), id), http.StatusFound)
	}
}

// Attachment serves a record's attachment under its canonical name and redirects
// any other name to it.
func (h *RecordHandler) Attachment(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	file, canonical, err := h.recordService.ResolveAttachment(user.ID, r.PathValue("id"), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if canonical != "" {
		http.Redirect(w, r, canonical, http.StatusFound)
		return
	}

	disposition := "attachment"
	if file.Inline {
		disposition = "inline"
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": file.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

// parseSubmission reads an urlencoded or multipart body. The attachment, if any,
// is buffered in memory. It writes the error response itself and returns false
// when the body cannot be read.
func (h *RecordHandler) parseSubmission(w http.ResponseWriter, r *http.Request) (service.RecordInput, bool) {
	var input service.RecordInput

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+formOverhead)

		err := r.ParseMultipartForm(formOverhead)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeErr(w, http.StatusRequestEntityTooLarge, "Attachment is too large")
				return input, false
			}
			writeErr(w, http.StatusBadRequest, "Failed to parse form")
			return input, false
		}

		upload, err := readUpload(r)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "Failed to read attachment")
			return input, false
		}
		input.Attachment = upload
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, formOverhead)

		err := r.ParseForm()
		if err != nil {
			writeErr(w, http.StatusBadRequest, "Failed to parse form")
			return input, false
		}
	}

	input.Title = r.PostFormValue("title")
	input.Description = r.PostFormValue("description")
	input.Amount = strings.TrimSpace(r.PostFormValue("amount"))
	input.CurrencyCode = r.PostFormValue("currencyCode")

	return input, true
}

func readUpload(r *http.Request) (*service.Upload, error) {
	file, header, err := r.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	return &service.Upload{Filename: header.Filename, Data: data}, nil
}
