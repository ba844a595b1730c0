package domain

import (
	"fmt"
	"strings"
	"time"
)

// Events emitted when a record is created.
const (
	EventImageUploaded    = "image.uploaded"
	EventImageTransformed = "image.transformed"
)

// ImageRecord describes one stored artifact. Records are immutable once
// created. A derived record points at its source through OriginalImage.
type ImageRecord struct {
	ID            string    `json:"_id"`
	Owner         string    `json:"owner"`
	Filename      string    `json:"filename"`
	OriginalName  string    `json:"originalName,omitempty"`
	MimeType      string    `json:"mimeType"`
	Size          int64     `json:"size"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Path          string    `json:"path"`
	OriginalImage string    `json:"originalImage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (r ImageRecord) IsDerived() bool {
	return r.OriginalImage != ""
}

// UploadedFile is a file received from a client, before it is stored.
type UploadedFile struct {
	OriginalName string
	MimeType     string
	Data         []byte
}

func (f UploadedFile) Validate() error {
	if len(f.Data) == 0 {
		return &ValidationError{Field: "image", Message: "No file uploaded"}
	}
	mime := strings.ToLower(strings.TrimSpace(f.MimeType))
	if mime != "" && !strings.HasPrefix(mime, "image/") {
		return &ValidationError{Field: "image", Message: fmt.Sprintf("unsupported mime type %s", f.MimeType)}
	}
	return nil
}

// ValidationError is a client mistake in the request itself.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
