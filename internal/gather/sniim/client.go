// Package sniim gathers the daily consumer milk price report published by
// SNIIM: it decides whether a day's report is ready, downloads and
// extracts it, and writes daily and monthly partitions.
package sniim

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"milkcast/internal/domain"
)

// DefaultBaseURL is the directory holding the published workbooks.
const DefaultBaseURL = "https://www.economia-sniim.gob.mx/SNIIM-Archivosfuente/Comentarios/Otros"

// maxReportBytes bounds a downloaded workbook.
const maxReportBytes = 32 << 20

// FileName returns the report file name for date, e.g. Leche30072025.xlsx.
func FileName(date time.Time) string {
	return "Leche" + date.Format("02012006") + ".xlsx"
}

// Client talks to the SNIIM file server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the report URL for date.
func (c *Client) URL(date time.Time) string {
	return c.baseURL + "/" + FileName(date)
}

// Head issues a HEAD request for date's report and returns the status code.
// Redirects are followed. Transport failures are returned as errors.
func (c *Client) Head(ctx context.Context, date time.Time) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.URL(date), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Download fetches date's report. Any status other than 200 yields a
// *domain.UpstreamDownloadError.
func (c *Client) Download(ctx context.Context, date time.Time) ([]byte, error) {
	url := c.URL(date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.UpstreamDownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.UpstreamDownloadError{URL: url, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes+1))
	if err != nil {
		return nil, &domain.UpstreamDownloadError{URL: url, Status: resp.StatusCode, Err: err}
	}
	if len(data) > maxReportBytes {
		return nil, &domain.UpstreamDownloadError{URL: url, Status: resp.StatusCode,
			Err: fmt.Errorf("report exceeds %d bytes", maxReportBytes)}
	}
	return data, nil
}
