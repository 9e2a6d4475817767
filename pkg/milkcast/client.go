// Package milkcast is a Go client for the milkcast prediction server.
package milkcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Input is one feature record for POST /predict. Weekday is 0 for Monday.
type Input struct {
	State      string  `json:"state"`
	City       string  `json:"city"`
	MilkType   string  `json:"milk_type"`
	Channel    string  `json:"channel"`
	Day        int     `json:"day"`
	Month      int     `json:"month"`
	Year       int     `json:"year"`
	Weekday    int     `json:"weekday"`
	PriceLag1  float64 `json:"price_lag1"`
	PriceMean7 float64 `json:"price_mean7"`
}

// Model describes the promoted model.
type Model struct {
	RunID          string    `json:"run_id"`
	Trainer        string    `json:"trainer"`
	ReferenceMonth string    `json:"reference_month"`
	RMSE           float64   `json:"rmse"`
	PromotedAt     time.Time `json:"promoted_at"`
}

// Partition is one stored datalake partition.
type Partition struct {
	Granularity string `json:"granularity"`
	Date        string `json:"date"`
	Key         string `json:"key"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("milkcast: status %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the milk-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new milkcast API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Predict returns one predicted price per input, in order.
func (c *Client) Predict(ctx context.Context, inputs ...Input) ([]float64, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("milkcast: no inputs")
	}
	body, err := json.Marshal(inputs)
	if err != nil {
		return nil, err
	}
	var out struct {
		Predictions []float64 `json:"predictions"`
	}
	if err := c.do(ctx, http.MethodPost, "/predict", body, &out); err != nil {
		return nil, err
	}
	if len(out.Predictions) != len(inputs) {
		return nil, fmt.Errorf("milkcast: %d predictions for %d inputs", len(out.Predictions), len(inputs))
	}
	return out.Predictions, nil
}

// Model returns the promoted model's metadata.
func (c *Client) Model(ctx context.Context) (*Model, error) {
	var m Model
	if err := c.do(ctx, http.MethodGet, "/api/model", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ReloadModel makes the server load the currently promoted model.
func (c *Client) ReloadModel(ctx context.Context) (*Model, error) {
	var m Model
	if err := c.do(ctx, http.MethodPost, "/api/model/reload", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Partitions lists stored partitions of granularity "daily" or "monthly".
func (c *Client) Partitions(ctx context.Context, granularity string) ([]Partition, error) {
	var out []Partition
	if err := c.do(ctx, http.MethodGet, "/api/partitions/"+url.PathEscape(granularity), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("milkcast: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
