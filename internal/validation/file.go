package validation

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// FileConstraints describes a family of files by content type and extension
type FileConstraints struct {
	AllowedMimeTypes  map[string]bool
	AllowedExtensions map[string]bool
}

var (
	// ImageConstraints covers photographed receipts
	ImageConstraints = FileConstraints{
		AllowedMimeTypes: map[string]bool{
			"image/jpeg": true,
			"image/png":  true,
			"image/webp": true,
			"image/gif":  true,
		},
		AllowedExtensions: map[string]bool{
			".jpg":  true,
			".jpeg": true,
			".png":  true,
			".webp": true,
			".gif":  true,
		},
	}

	// DocumentConstraints covers invoices and statements
	DocumentConstraints = FileConstraints{
		AllowedMimeTypes: map[string]bool{
			"application/pdf": true,
			"text/plain":      true,
		},
		AllowedExtensions: map[string]bool{
			".pdf": true,
			".txt": true,
		},
	}
)

// ValidateAttachment checks an upload before it is stored. Any file type is accepted;
// Inline decides later how the file is served.
func ValidateAttachment(data []byte, maxSize int64) error {
	if len(data) == 0 {
		return newError("attachment", "attachment is empty")
	}

	if int64(len(data)) > maxSize {
		return newError("attachment", fmt.Sprintf("file too large: maximum size is %s", humanize.IBytes(uint64(maxSize))))
	}

	return nil
}

// Inline reports whether a file may be displayed by the browser. Its sniffed content
// type and its extension must both belong to one of the constraint sets.
func Inline(name string, data []byte, constraints ...FileConstraints) bool {
	for _, c := range constraints {
		if c.matches(name, data) {
			return true
		}
	}
	return false
}

func (c FileConstraints) matches(name string, data []byte) bool {
	// Detect the type from the content itself; the client's Content-Type is not trusted
	detectedType, _, _ := strings.Cut(http.DetectContentType(data), ";")
	if !c.AllowedMimeTypes[detectedType] {
		return false
	}

	ext := strings.ToLower(filepath.Ext(name))
	return c.AllowedExtensions[ext]
}

// AttachmentName reduces an uploaded file name to the bare name used as storage key.
// Browsers may send full client paths such as C:\fakepath\receipt.png.
func AttachmentName(filename string) (string, error) {
	name := lastSegment(strings.ReplaceAll(filename, `\`, "/"))
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, 0) {
		return "", newError("attachment", "attachment file name is invalid")
	}

	return name, nil
}

// AttachmentNameFromURL extracts the file name from an attachment URL or path,
// e.g. "/records/expense/42/attachments/receipt.png" yields "receipt.png".
func AttachmentNameFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	p := raw
	u, err := url.Parse(raw)
	if err == nil {
		p = u.Path
	}

	name := lastSegment(p)
	if name == "" || name == "." || name == ".." {
		return "", newError("attachmentUrl", "attachment URL does not name a file")
	}

	return name, nil
}

func lastSegment(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// ContentType guesses the content type to serve a stored attachment with
func ContentType(name string, data []byte) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
