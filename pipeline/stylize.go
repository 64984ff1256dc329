package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultStylizeBaseURL  = "https://cl.imagineapi.dev"
	defaultPollInterval    = 5 * time.Second
	defaultPollTimeout     = 10 * time.Minute
	maxConsecutivePollErrs = 5
)

// Prompt templates per style preset. Both instruct the image service to keep
// a clean silhouette on a white background because the segmentation stage
// depends on it.
var stylePrompts = map[int]string{
	1: "please make cute.\n" + stylePromptBody,
	2: "please make cool.\n" + stylePromptBody,
}

const stylePromptBody = "Create a unique and cool character, inspired by a child's painting, " +
	"with a focus on making the design slightly more cute while preserving the essence of the original. " +
	"The character should be simplified, featuring distinct arms and legs without including a detailed face or body. " +
	"Ensure the character is singular, with no additional characters present. " +
	"It's crucial that everything outside the character's clear outline is set against a pure white background. " +
	"This specification is essential as the image will be used for character outline segmentation. " +
	"Avoid adding any shadows or extraneous elements around the character to maintain simplicity and focus on the character's silhouette."

// StylizeClient submits drawings to the generative-image service and polls
// the asynchronous job until it reaches a terminal state.
type StylizeClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewStylizeClientFromEnv constructs a StylizeClient using environment variables.
//
// Expected variables:
//   - STYLIZE_API_KEY: required bearer token for the image service
//   - STYLIZE_BASE_URL: optional override for the API base URL
//   - STYLIZE_POLL_INTERVAL_SECONDS / STYLIZE_POLL_TIMEOUT_SECONDS: optional overrides
func NewStylizeClientFromEnv() (*StylizeClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("STYLIZE_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("pipeline: STYLIZE_API_KEY environment variable is required")
	}

	baseURL := strings.TrimSpace(os.Getenv("STYLIZE_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultStylizeBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("pipeline: invalid stylize base URL %q", baseURL)
	}

	return &StylizeClient{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      baseURL,
		apiKey:       apiKey,
		pollInterval: readDurationEnv("STYLIZE_POLL_INTERVAL_SECONDS", defaultPollInterval),
		pollTimeout:  readDurationEnv("STYLIZE_POLL_TIMEOUT_SECONDS", defaultPollTimeout),
	}, nil
}

func readDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

type stylizeSubmitResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type stylizeStatusResponse struct {
	Data struct {
		ID           string   `json:"id"`
		Status       string   `json:"status"`
		UpscaledURLs []string `json:"upscaled_urls"`
	} `json:"data"`
}

// Generate submits the drawing for stylization and blocks until the job
// completes, fails, or the poll deadline passes. On success it returns the
// candidate stylized image URLs; the list is never empty.
func (c *StylizeClient) Generate(ctx context.Context, stylePreset int, rawImageURL string) ([]string, error) {
	prompt, ok := stylePrompts[stylePreset]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStylePreset, stylePreset)
	}
	if strings.TrimSpace(rawImageURL) == "" {
		return nil, ErrMissingRawImage
	}

	jobID, err := c.submit(ctx, prompt+"\n"+rawImageURL)
	if err != nil {
		return nil, err
	}

	return c.waitForResult(ctx, jobID)
}

func (c *StylizeClient) submit(ctx context.Context, prompt string) (string, error) {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(map[string]string{"prompt": prompt}); err != nil {
		return "", fmt.Errorf("pipeline: encode stylize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/items/images/", body)
	if err != nil {
		return "", fmt.Errorf("pipeline: create stylize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pipeline: submit stylize job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("pipeline: stylize submit status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded stylizeSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("pipeline: decode stylize submit response: %w", err)
	}
	if strings.TrimSpace(decoded.Data.ID) == "" {
		return "", fmt.Errorf("%w: submit response carries no job id", ErrUpstreamProtocol)
	}

	return decoded.Data.ID, nil
}

// waitForResult polls the job at a fixed interval until a terminal state.
// Transient transport errors are retried with capped backoff; a completed
// job without URLs is a contract violation, never an empty success.
func (c *StylizeClient) waitForResult(ctx context.Context, jobID string) ([]string, error) {
	deadline := time.Now().Add(c.pollTimeout)
	consecutiveErrs := 0
	backoff := c.pollInterval

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: job %s after %s", ErrPollTimeout, jobID, c.pollTimeout)
		}

		status, err := c.fetchStatus(ctx, jobID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			consecutiveErrs++
			if consecutiveErrs >= maxConsecutivePollErrs {
				return nil, fmt.Errorf("pipeline: poll stylize job %s: %w", jobID, err)
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
			continue
		}
		consecutiveErrs = 0
		backoff = c.pollInterval

		switch strings.ToLower(status.Data.Status) {
		case "completed":
			if len(status.Data.UpscaledURLs) == 0 {
				return nil, fmt.Errorf("%w: job %s completed without result URLs", ErrUpstreamProtocol, jobID)
			}
			return status.Data.UpscaledURLs, nil
		case "failed":
			return nil, fmt.Errorf("%w: job %s", ErrUpstreamGeneration, jobID)
		}

		if err := sleepCtx(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}
}

func (c *StylizeClient) fetchStatus(ctx context.Context, jobID string) (*stylizeStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/items/images/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status endpoint returned %s", resp.Status)
	}

	var decoded stylizeStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &decoded, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
