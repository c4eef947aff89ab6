package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat-backend/internal/utils"
)

func testLogger() *utils.Logger {
	return utils.NewLogger("error")
}

func completionServer(t *testing.T, fn func(req chatRequest, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fn(req, w)
	}))
}

func respondContent(w http.ResponseWriter, content string, totalTokens int) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{"total_tokens": totalTokens},
	})
}

func TestSummarize(t *testing.T) {
	var got chatRequest
	srv := completionServer(t, func(req chatRequest, w http.ResponseWriter) {
		got = req
		respondContent(w, "  A short summary.  ", 42)
	})
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, testLogger())

	summary, usage, err := client.Summarize(context.Background(), "document text")
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", summary)
	assert.Equal(t, 42, usage.TotalTokens)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "document text", got.Messages[1].Content)
}

func TestSummarizeTruncatesOversizedInput(t *testing.T) {
	var got chatRequest
	srv := completionServer(t, func(req chatRequest, w http.ResponseWriter) {
		got = req
		respondContent(w, "summary", 1)
	})
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k", MaxInputChars: 100}, testLogger())

	_, _, err := client.Summarize(context.Background(), strings.Repeat("x", 500))
	require.NoError(t, err)
	assert.Len(t, got.Messages[1].Content, 100)
}

func TestCompleteBuildsPrompt(t *testing.T) {
	var got chatRequest
	srv := completionServer(t, func(req chatRequest, w http.ResponseWriter) {
		got = req
		respondContent(w, "the answer", 7)
	})
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, testLogger())

	history := []Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	answer, usage, err := client.Complete(context.Background(), "retrieved context", history, "new question")
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
	assert.Equal(t, 7, usage.TotalTokens)

	// system prompt, context block, two history turns, user message
	require.Len(t, got.Messages, 5)
	assert.Contains(t, got.Messages[1].Content, "retrieved context")
	assert.Equal(t, "earlier question", got.Messages[2].Content)
	assert.Equal(t, "new question", got.Messages[4].Content)
}

func TestCompleteWithoutContext(t *testing.T) {
	var got chatRequest
	srv := completionServer(t, func(req chatRequest, w http.ResponseWriter) {
		got = req
		respondContent(w, "answer", 1)
	})
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, testLogger())

	_, _, err := client.Complete(context.Background(), "", nil, "question")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
}

func TestRiskFactorsStripsCodeFence(t *testing.T) {
	srv := completionServer(t, func(req chatRequest, w http.ResponseWriter) {
		respondContent(w, "```json\n{\"risk_factors\": [{\"risk_factor\": \"PII\"}]}\n```", 3)
	})
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, testLogger())

	out, _, err := client.RiskFactors(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
	assert.Contains(t, out, "PII")
}

func TestRiskFactorsInvalidJSONFallsBack(t *testing.T) {
	srv := completionServer(t, func(req chatRequest, w http.ResponseWriter) {
		respondContent(w, "I could not find any risks, sorry!", 3)
	})
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, testLogger())

	out, _, err := client.RiskFactors(context.Background(), "text")
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk_factors": []}`, out)
}

func TestSuggestTitleCapsLength(t *testing.T) {
	srv := completionServer(t, func(req chatRequest, w http.ResponseWriter) {
		respondContent(w, strings.Repeat("T", 80), 1)
	})
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, testLogger())

	title, err := client.SuggestTitle(context.Background(), "What does the contract say about liability?")
	require.NoError(t, err)
	assert.Len(t, title, 50)
}

func TestChatRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := completionServer(t, func(req chatRequest, w http.ResponseWriter) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		respondContent(w, "recovered", 1)
	})
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k", MaxRetries: 3}, testLogger())

	answer, _, err := client.Summarize(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
	assert.Equal(t, 3, attempts)
}

func TestChatGivesUpAfterRetries(t *testing.T) {
	srv := completionServer(t, func(req chatRequest, w http.ResponseWriter) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k", MaxRetries: 1}, testLogger())

	_, _, err := client.Summarize(context.Background(), "text")
	require.Error(t, err)
	var perr *ProviderError
	assert.ErrorAs(t, err, &perr)
}
