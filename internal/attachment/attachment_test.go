package attachment

import (
	"testing"

	"portal-messaging/pkg/apperr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		filename string
		want     string
	}{
		{"image by mime", "image/png", "whatever.bin", TypeImage},
		{"video by mime", "video/mp4", "clip", TypeVideo},
		{"audio by mime", "audio/mpeg", "song", TypeAudio},
		{"pdf by mime", "application/pdf", "report", TypeDocument},
		{"docx by mime", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "a", TypeDocument},
		{"mime with charset param", "text/plain; charset=utf-8", "notes", TypeDocument},
		{"mime wins over extension", "image/jpeg", "photo.mp3", TypeImage},
		{"octet-stream falls through to extension", "application/octet-stream", "photo.jpg", TypeImage},
		{"image by extension", "", "photo.JPG", TypeImage},
		{"document by extension", "", "report.pdf", TypeDocument},
		{"video by extension", "", "clip.mkv", TypeVideo},
		{"audio by extension", "", "song.flac", TypeAudio},
		{"unknown mime unknown extension", "application/x-custom", "data.xyz", TypeFile},
		{"no mime no extension", "", "README", TypeFile},
		{"empty everything", "", "", TypeFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.mimeType, tt.filename); got != tt.want {
				t.Errorf("Classify(%q, %q) = %q, want %q", tt.mimeType, tt.filename, got, tt.want)
			}
		})
	}
}

func TestValidateSize(t *testing.T) {
	maxSize := int64(10 * 1024 * 1024)

	if err := ValidateSize(maxSize, maxSize); err != nil {
		t.Errorf("size equal to limit should pass: %v", err)
	}
	err := ValidateSize(maxSize+1, maxSize)
	if err == nil {
		t.Fatal("oversized attachment should fail")
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestValidateGroupImage(t *testing.T) {
	maxSize := int64(5 * 1024 * 1024)

	if err := ValidateGroupImage("avatar.png", 1024, maxSize); err != nil {
		t.Errorf("valid image should pass: %v", err)
	}
	if err := ValidateGroupImage("avatar.webp", 1024, maxSize); err == nil {
		t.Error("disallowed extension should fail")
	}
	if err := ValidateGroupImage("avatar.png", maxSize+1, maxSize); err == nil {
		t.Error("oversized image should fail")
	}
}
