// Package predict talks to the prediction service that classifies a
// telemetry submission as bot or human.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Labels relayed to callers.
const (
	LabelBot   = "bot"
	LabelHuman = "human"
)

// ErrMissingPrediction is returned when the service answers without a
// prediction field.
var ErrMissingPrediction = errors.New("predict: response has no prediction")

// StatusError reports a non-2xx answer from the prediction service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("predict: unexpected status %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 512

// Response is the body returned by the prediction service.
type Response struct {
	Prediction *float64 `json:"prediction"`
}

// Client posts payloads to a prediction endpoint.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for the endpoint at url. A nil httpClient means
// a zero-value http.Client, i.e. no timeout beyond the transport defaults.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{url: url, http: httpClient}
}

// Predict sends body unmodified and returns the numeric prediction.
func (c *Client) Predict(ctx context.Context, body []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("predict: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("predict: call %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("predict: decode response: %w", err)
	}
	if out.Prediction == nil {
		return 0, ErrMissingPrediction
	}
	return *out.Prediction, nil
}

// Label maps a prediction to the label relayed to callers: 0 is a bot,
// anything else a human.
func Label(prediction float64) string {
	if prediction == 0 {
		return LabelBot
	}
	return LabelHuman
}
