package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestUploadedFileValidate(t *testing.T) {
	valid := UploadedFile{OriginalName: "cat.png", MimeType: "image/png", Data: []byte{1}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid upload, got error: %v", err)
	}

	unknownMime := UploadedFile{OriginalName: "cat", Data: []byte{1}}
	if err := unknownMime.Validate(); err != nil {
		t.Fatalf("expected upload without mime type to pass, got error: %v", err)
	}

	var verr *ValidationError
	empty := UploadedFile{OriginalName: "cat.png", MimeType: "image/png"}
	if err := empty.Validate(); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty upload, got %v", err)
	}
	if verr.Message != "No file uploaded" {
		t.Fatalf("unexpected message %q", verr.Message)
	}

	notImage := UploadedFile{OriginalName: "notes.txt", MimeType: "text/plain", Data: []byte("hi")}
	if err := notImage.Validate(); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for text upload, got %v", err)
	}
}

func TestImageRecordJSONShape(t *testing.T) {
	rec := ImageRecord{
		ID:        "abc",
		Owner:     "user-1",
		Filename:  "1-cat.png",
		MimeType:  "image/png",
		Size:      10,
		Width:     2,
		Height:    3,
		Path:      "/data/1-cat.png",
		CreatedAt: time.Unix(0, 0).UTC(),
		UpdatedAt: time.Unix(0, 0).UTC(),
	}
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}

	body := string(out)
	for _, key := range []string{`"_id":"abc"`, `"owner":"user-1"`, `"mimeType":"image/png"`, `"createdAt":`} {
		if !strings.Contains(body, key) {
			t.Fatalf("expected %s in %s", key, body)
		}
	}
	if strings.Contains(body, "originalImage") {
		t.Fatalf("source records should omit originalImage: %s", body)
	}
	if rec.IsDerived() {
		t.Fatal("record without originalImage is not derived")
	}
}
