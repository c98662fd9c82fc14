// Package replicate is a minimal client for the Replicate prediction API,
// used to acquire synthetic fluoroscopy images for the dataset. The core
// pipeline never touches this package; it only consumes the image files the
// fetcher writes.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.replicate.com"
	defaultModel   = "google/nano-banana-pro"
)

// Client talks to the Replicate API. The zero Delay disables pacing between
// dataset items; the reference configuration waits between requests to stay
// under the API rate limits.
type Client struct {
	BaseURL string
	Token   string
	Model   string

	// Delay between consecutive generations when fetching a whole dataset.
	Delay time.Duration

	// PollInterval between status checks for asynchronous predictions.
	PollInterval time.Duration

	HTTPClient *http.Client
}

// NewClient builds a client with the reference defaults. The token is the
// caller's responsibility (typically from REPLICATE_API_TOKEN).
func NewClient(token string) *Client {
	return &Client{
		BaseURL:      defaultBaseURL,
		Token:        token,
		Model:        defaultModel,
		Delay:        15 * time.Second,
		PollInterval: 2 * time.Second,
		HTTPClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

// PredictionInput is the generation request payload.
type PredictionInput struct {
	Prompt            string `json:"prompt"`
	Resolution        string `json:"resolution,omitempty"`
	AspectRatio       string `json:"aspect_ratio,omitempty"`
	OutputFormat      string `json:"output_format,omitempty"`
	SafetyFilterLevel string `json:"safety_filter_level,omitempty"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// FluoroscopyPrompt builds the generation prompt for one landmark case.
func FluoroscopyPrompt(anatomy, sex string, ageYears int) string {
	return fmt.Sprintf("A professional medical 2D fluoroscopy X-ray, 2K resolution, grayscale. "+
		"Subject: %s patient, age %d. Anatomical focus: %s. "+
		"Features: High contrast, clinical grain, sharp bone definition, realistic density.",
		sex, ageYears, anatomy)
}

// Generate creates a prediction for the prompt, waits for it to succeed and
// returns the generated image bytes.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if c.Token == "" {
		return nil, fmt.Errorf("replicate: API token is not set")
	}

	input := PredictionInput{
		Prompt:            prompt,
		Resolution:        "2K",
		AspectRatio:       "1:1",
		OutputFormat:      "png",
		SafetyFilterLevel: "block_only_high",
	}
	pred, err := c.createPrediction(ctx, input)
	if err != nil {
		return nil, err
	}

	for pred.Status == "starting" || pred.Status == "processing" {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.PollInterval):
		}
		pred, err = c.getPrediction(ctx, pred.ID)
		if err != nil {
			return nil, err
		}
	}
	if pred.Status != "succeeded" {
		return nil, fmt.Errorf("replicate: prediction %s ended with status %q: %s", pred.ID, pred.Status, pred.Error)
	}

	url, err := outputURL(pred.Output)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, url)
}

func (c *Client) createPrediction(ctx context.Context, input PredictionInput) (*prediction, error) {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/models/%s/predictions", c.BaseURL, c.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	return c.doPrediction(req)
}

func (c *Client) getPrediction(ctx context.Context, id string) (*prediction, error) {
	url := fmt.Sprintf("%s/v1/predictions/%s", c.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	return c.doPrediction(req)
}

func (c *Client) doPrediction(req *http.Request) (*prediction, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("replicate: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("replicate: failed to decode response: %w", err)
	}
	return &pred, nil
}

// outputURL extracts the image URL from the prediction output, which the API
// returns either as a single string or as a list of strings.
func outputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("replicate: prediction has no output")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0], nil
	}
	return "", fmt.Errorf("replicate: unrecognized output payload %s", string(raw))
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate: failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("replicate: image download returned HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
