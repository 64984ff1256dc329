package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// AnalysisResult is what the classification microservice returns: the child's
// sentences grouped by emotion category, plus a wordcloud image per category.
type AnalysisResult struct {
	Emotions      map[string][]string `json:"emotions"`
	WordcloudURLs map[string]string   `json:"wordcloud_urls"`
}

// AnalyzerClient calls the external emotion classification and wordcloud
// service.
type AnalyzerClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewAnalyzerClientFromEnv requires EMOTION_API_URL; the emotion module does
// not start without its collaborator.
func NewAnalyzerClientFromEnv() (*AnalyzerClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("EMOTION_API_URL"))
	if baseURL == "" {
		return nil, errors.New("emotion: EMOTION_API_URL environment variable is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("emotion: invalid base URL %q", baseURL)
	}

	return &AnalyzerClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
	}, nil
}

// Analyze classifies the given sentences.
func (c *AnalyzerClient) Analyze(ctx context.Context, sentences []string) (*AnalysisResult, error) {
	if c == nil {
		return nil, errors.New("emotion: client is nil")
	}
	if len(sentences) == 0 {
		return nil, errors.New("emotion: no sentences to analyze")
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(map[string][]string{"sentences": sentences}); err != nil {
		return nil, fmt.Errorf("emotion: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", body)
	if err != nil {
		return nil, fmt.Errorf("emotion: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emotion: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("emotion: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var result AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("emotion: decode response: %w", err)
	}
	if len(result.Emotions) == 0 {
		return nil, errors.New("emotion: service returned no emotion categories")
	}

	return &result, nil
}
