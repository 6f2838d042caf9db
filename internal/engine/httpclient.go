package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retryableStatus is the set of upstream statuses C1 treats as
// transient. Non-retryable failures surface on the first attempt.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:        true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusTooManyRequests:       true,
	http.StatusInternalServerError:   true,
	http.StatusBadGateway:            true,
	http.StatusServiceUnavailable:    true,
	http.StatusGatewayTimeout:        true,
}

const maxAttempts = 3

// httpClient is the shared transport for the aligner, Tesseract and
// PaddleOCR clients: stateless, safe to share across workers, fresh
// upload per attempt.
type httpClient struct {
	base    string
	http    *http.Client
	timeout time.Duration
}

func newHTTPClient(base string, timeout time.Duration) *httpClient {
	return &httpClient{base: base, http: &http.Client{}, timeout: timeout}
}

func (c *httpClient) postMultipart(ctx context.Context, path, fieldName, filename string, buf []byte, query map[string]string) ([]byte, error) {
	op := func() ([]byte, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		body, contentType, err := encodeMultipart(fieldName, filename, buf)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("httpClient - postMultipart - encodeMultipart: %w", err))
		}

		reqURL := c.base + path
		if len(query) > 0 {
			reqURL += "?" + encodeQuery(query)
		}

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, reqURL, body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("httpClient - postMultipart - http.NewRequestWithContext: %w", err))
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("httpClient - postMultipart - c.http.Do: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("httpClient - postMultipart - io.ReadAll: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		if retryableStatus[resp.StatusCode] {
			return nil, fmt.Errorf("httpClient - postMultipart - retryable status %d", resp.StatusCode)
		}

		return nil, backoff.Permanent(fmt.Errorf("httpClient - postMultipart - status %d: %s", resp.StatusCode, respBody))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second

	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(maxAttempts))
}

func encodeMultipart(fieldName, filename string, buf []byte) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile(fieldName, filename)
	if err != nil {
		return nil, "", fmt.Errorf("encodeMultipart - w.CreateFormFile: %w", err)
	}

	if _, err := part.Write(buf); err != nil {
		return nil, "", fmt.Errorf("encodeMultipart - part.Write: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("encodeMultipart - w.Close: %w", err)
	}

	return &body, w.FormDataContentType(), nil
}

func encodeQuery(params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return q.Encode()
}
