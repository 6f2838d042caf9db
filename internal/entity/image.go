package entity

import "time"

type Image struct {
	ID uuid21 `json:"id"`

	OriginalURL  string  `json:"originalUrl"`
	ProcessedURL *string `json:"processedUrl,omitempty"`

	FileSize int64    `json:"fileSize"`
	MimeType MimeType `json:"mimeType"`

	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`

	SourceService   *string `json:"sourceService,omitempty"`
	SourceReference *string `json:"sourceReference,omitempty"`

	UploadedAt time.Time `json:"uploadedAt"`
}

type MimeType string

const (
	MimeJPEG MimeType = "image/jpeg"
	MimePNG  MimeType = "image/png"
	MimeWebP MimeType = "image/webp"
)

func AllowedMimeTypes() map[MimeType]string {
	return map[MimeType]string{
		MimeJPEG: ".jpg",
		MimePNG:  ".png",
		MimeWebP: ".webp",
	}
}

// MaxImageSize is the ingest size ceiling, in bytes (10 MiB).
const MaxImageSize int64 = 10 * 1024 * 1024
