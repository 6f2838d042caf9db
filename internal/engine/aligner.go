package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Aligner calls the aligner service's POST /api/v1/align.
type Aligner struct {
	c *httpClient
}

func NewAligner(baseURL string, timeout time.Duration) *Aligner {
	return &Aligner{c: newHTTPClient(baseURL, timeout)}
}

type alignResponse struct {
	Warped       string `json:"warped"`
	Preprocessed string `json:"preprocessed"`
}

func (a *Aligner) Align(ctx context.Context, buf []byte, opts AlignOptions) (AlignResult, error) {
	query := map[string]string{
		"mode":             opts.Mode,
		"aggressive":       strconv.FormatBool(opts.Aggressive),
		"apply_ocr_prep":   strconv.FormatBool(opts.ApplyOCRPrep),
		"simplify_percent": strconv.FormatFloat(opts.SimplifyPercent, 'f', -1, 64),
	}

	raw, err := a.c.postMultipart(ctx, "/api/v1/align", "image", "receipt.jpg", buf, query)
	if err != nil {
		return AlignResult{}, fmt.Errorf("Aligner - Align - a.c.postMultipart: %w", err)
	}

	var resp alignResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return AlignResult{}, fmt.Errorf("Aligner - Align - json.Unmarshal: %w", err)
	}

	warped, err := base64.StdEncoding.DecodeString(resp.Warped)
	if err != nil {
		return AlignResult{}, fmt.Errorf("Aligner - Align - base64.DecodeString warped: %w", err)
	}

	preprocessed, err := base64.StdEncoding.DecodeString(resp.Preprocessed)
	if err != nil {
		return AlignResult{}, fmt.Errorf("Aligner - Align - base64.DecodeString preprocessed: %w", err)
	}

	return AlignResult{Warped: warped, Preprocessed: preprocessed}, nil
}

var _ ImageAligner = (*Aligner)(nil)
