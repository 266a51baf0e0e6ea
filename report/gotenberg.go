// Package report talks to the Gotenberg document service.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrUpstream marks a failed or rejected call to Gotenberg.
var ErrUpstream = errors.New("report: document service error")

const maxResponseBytes = 64 << 20

// File is one named document sent to Gotenberg.
type File struct {
	Name    string
	Content []byte
}

// Client wraps interactions with the Gotenberg API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health returned status %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

// RenderHTML converts raw HTML into a PDF document using Gotenberg.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	return c.post(ctx, "/forms/chromium/convert/html", []File{{Name: "index.html", Content: []byte(html)}})
}

// MergePDFs concatenates files, in order, into one PDF.
func (c *Client) MergePDFs(ctx context.Context, files []File) ([]byte, error) {
	if len(files) < 2 {
		return nil, errors.New("report: merge needs at least two files")
	}
	// Gotenberg merges in alphanumeric filename order.
	ordered := make([]File, len(files))
	for i, f := range files {
		ordered[i] = File{Name: fmt.Sprintf("%03d.pdf", i+1), Content: f.Content}
	}
	return c.post(ctx, "/forms/pdfengines/merge", ordered)
}

func (c *Client) post(ctx context.Context, path string, files []File) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUpstream, path, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}
