package kintone

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// UploadFile uploads file content and returns the file key kintone
// assigns. The key is later attached to a record's file field.
func (c *Client) UploadFile(ctx context.Context, filename string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("kintone: creating multipart form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("kintone: buffering file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("kintone: finalizing multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("file.json", nil), &buf)
	if err != nil {
		return "", fmt.Errorf("kintone: creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("kintone: uploading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeAPIError(resp)
	}

	var out struct {
		FileKey string `json:"fileKey"`
	}
	if err := decodeJSON(resp.Body, &out); err != nil {
		return "", err
	}
	return out.FileKey, nil
}

// DownloadFile streams a file's content by its key. The caller must close
// the returned reader.
func (c *Client) DownloadFile(ctx context.Context, fileKey string) (io.ReadCloser, string, error) {
	query := url.Values{}
	query.Set("fileKey", fileKey)

	resp, err := c.raw(ctx, http.MethodGet, "file.json", query)
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
