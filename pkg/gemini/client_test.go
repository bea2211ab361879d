package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")
}

func TestGenerateJSON(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-test:generateContent")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": `{"score":6,"reasoning":"new product line"}`}},
				},
			}},
		})
	}))
	defer ts.Close()

	c, err := NewClient(context.Background(), "test-key", WithBaseURL(ts.URL))
	require.NoError(t, err)

	out, err := c.GenerateJSON(context.Background(), Request{
		Model:             "gemini-test",
		SystemInstruction: "score changes",
		Prompt:            "diff here",
		Schema:            &genai.Schema{Type: genai.TypeObject},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":6,"reasoning":"new product line"}`, out)
	assert.Contains(t, body, "systemInstruction")
	assert.Contains(t, body, "generationConfig")
}

func TestGenerateJSON_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`))
	}))
	defer ts.Close()

	c, err := NewClient(context.Background(), "test-key", WithBaseURL(ts.URL))
	require.NoError(t, err)

	_, err = c.GenerateJSON(context.Background(), Request{Model: "gemini-test", Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini: generate content")
}
