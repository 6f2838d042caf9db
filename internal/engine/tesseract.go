package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const defaultTesseractLang = "rus+eng"

// Tesseract calls the Tesseract OCR service's POST /api/v1/recognize.
type Tesseract struct {
	c    *httpClient
	lang string
}

func NewTesseract(baseURL string, timeout time.Duration) *Tesseract {
	return &Tesseract{c: newHTTPClient(baseURL, timeout), lang: defaultTesseractLang}
}

type recognizeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (t *Tesseract) Recognize(ctx context.Context, buf []byte) (RecognizeResult, error) {
	raw, err := t.c.postMultipart(ctx, "/api/v1/recognize", "file", "receipt.jpg", buf, map[string]string{"lang": t.lang})
	if err != nil {
		return RecognizeResult{}, fmt.Errorf("Tesseract - Recognize - t.c.postMultipart: %w", err)
	}

	var resp recognizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return RecognizeResult{}, fmt.Errorf("Tesseract - Recognize - json.Unmarshal: %w", err)
	}

	return RecognizeResult{Text: resp.Text, Confidence: resp.Confidence}, nil
}

var _ TextRecognizer = (*Tesseract)(nil)
