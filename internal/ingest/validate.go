package ingest

import (
	"fmt"

	"github.com/dkrasnov/receipt-gateway/internal/entity"
	"github.com/dkrasnov/receipt-gateway/pkg/types/errs"
)

func validateMime(mime string) (entity.MimeType, string, error) {
	m := entity.MimeType(mime)
	ext, ok := entity.AllowedMimeTypes()[m]
	if !ok {
		return "", "", fmt.Errorf("ingest - validateMime: unsupported mime type %q: %w", mime, errs.ErrValidation)
	}
	return m, ext, nil
}

func validateSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("ingest - validateSize: empty file: %w", errs.ErrValidation)
	}
	if size > entity.MaxImageSize {
		return fmt.Errorf("ingest - validateSize: file exceeds %d bytes: %w", entity.MaxImageSize, errs.ErrValidation)
	}
	return nil
}

func validateAcceptedFormats(formats []entity.QRFormat) error {
	for _, f := range formats {
		switch f {
		case entity.QRFiscal, entity.QRUrl, entity.QRUnknown:
			continue
		default:
			return fmt.Errorf("ingest - validateAcceptedFormats: unknown qr format %q: %w", f, errs.ErrValidation)
		}
	}
	return nil
}
