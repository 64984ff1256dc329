package emotion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeGroupsSentences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analyze", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var payload map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, []string{"오늘 놀이터에서 놀았어", "친구가 안 놀아줘서 슬펐어"}, payload["sentences"])

		json.NewEncoder(w).Encode(AnalysisResult{
			Emotions: map[string][]string{
				"기쁨": {"오늘 놀이터에서 놀았어"},
				"슬픔": {"친구가 안 놀아줘서 슬펐어"},
			},
			WordcloudURLs: map[string]string{
				"기쁨": "https://files/wordcloud/joy.png",
				"슬픔": "https://files/wordcloud/sad.png",
			},
		})
	}))
	defer server.Close()

	client := &AnalyzerClient{httpClient: server.Client(), baseURL: server.URL}
	result, err := client.Analyze(context.Background(), []string{"오늘 놀이터에서 놀았어", "친구가 안 놀아줘서 슬펐어"})
	require.NoError(t, err)

	require.Len(t, result.Emotions, 2)
	require.Equal(t, []string{"친구가 안 놀아줘서 슬펐어"}, result.Emotions["슬픔"])
	require.Equal(t, "https://files/wordcloud/joy.png", result.WordcloudURLs["기쁨"])
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	client := &AnalyzerClient{httpClient: http.DefaultClient, baseURL: "http://localhost:0"}
	_, err := client.Analyze(context.Background(), nil)
	require.Error(t, err)
}

func TestAnalyzeEmptyCategoriesIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(AnalysisResult{Emotions: map[string][]string{}})
	}))
	defer server.Close()

	client := &AnalyzerClient{httpClient: server.Client(), baseURL: server.URL}
	_, err := client.Analyze(context.Background(), []string{"안녕"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no emotion categories")
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := &AnalyzerClient{httpClient: server.Client(), baseURL: server.URL}
	_, err := client.Analyze(context.Background(), []string{"안녕"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status")
}

func TestNewAnalyzerClientFromEnv(t *testing.T) {
	t.Run("requires url", func(t *testing.T) {
		t.Setenv("EMOTION_API_URL", "")
		_, err := NewAnalyzerClientFromEnv()
		require.Error(t, err)
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		t.Setenv("EMOTION_API_URL", "http://emotion.internal/")
		client, err := NewAnalyzerClientFromEnv()
		require.NoError(t, err)
		require.Equal(t, "http://emotion.internal", client.baseURL)
	})
}
