package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PaddleOCR calls the PaddleOCR service's POST /api/v1/recognize.
type PaddleOCR struct {
	c *httpClient
}

func NewPaddleOCR(baseURL string, timeout time.Duration) *PaddleOCR {
	return &PaddleOCR{c: newHTTPClient(baseURL, timeout)}
}

func (p *PaddleOCR) Recognize(ctx context.Context, buf []byte) (RecognizeResult, error) {
	raw, err := p.c.postMultipart(ctx, "/api/v1/recognize", "file", "receipt.jpg", buf, nil)
	if err != nil {
		return RecognizeResult{}, fmt.Errorf("PaddleOCR - Recognize - p.c.postMultipart: %w", err)
	}

	var resp recognizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return RecognizeResult{}, fmt.Errorf("PaddleOCR - Recognize - json.Unmarshal: %w", err)
	}

	return RecognizeResult{Text: resp.Text, Confidence: resp.Confidence}, nil
}

var _ TextRecognizer = (*PaddleOCR)(nil)
