package category

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"settlement-service/internal/config"
)

const defaultTimeoutMs = 5_000

// Client calls a remote category-detection service.
type Client struct {
	client *http.Client
	url    string
}

func NewClient(cfg config.Category) *Client {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = defaultTimeoutMs
	}
	return &Client{
		client: &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		url:    cfg.RemoteURL,
	}
}

func (c *Client) Detect(ctx context.Context, text string) (*Suggestion, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("error response: %s", resp.Status)
	}

	var suggestion *Suggestion
	if err := json.NewDecoder(resp.Body).Decode(&suggestion); err != nil {
		return nil, err
	}
	return suggestion, nil
}
