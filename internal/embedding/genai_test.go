package embedding

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenAIEngine_Embed(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotPath, gotBody = r.URL.Path, string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"embeddings": [{"values": [0.25, 0.5, 0.75]}], "embedding": {"values": [0.25, 0.5, 0.75]}}`)
	}))
	defer srv.Close()

	e, err := NewGenAIEngine(context.Background(), GenAIConfig{APIKey: "k", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, "genai:"+DefaultModel, e.Name())

	vec, err := e.Embed(context.Background(), "shopping cart requirements", PurposeQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 0.75}, vec)
	assert.Contains(t, gotPath, DefaultModel)
	assert.Contains(t, gotBody, "RETRIEVAL_QUERY")
	assert.Contains(t, gotBody, "shopping cart requirements")
}

func TestGenAIEngine_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 500, "message": "boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewGenAIEngine(context.Background(), GenAIConfig{APIKey: "k", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "text", PurposeDocument)
	assert.Error(t, err)
}

func TestGenAIEngine_EmptyInput(t *testing.T) {
	e, err := NewGenAIEngine(context.Background(), GenAIConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1/"})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "", PurposeDocument)
	assert.Error(t, err)
}

func TestNewGenAIEngine_RequiresKey(t *testing.T) {
	_, err := NewGenAIEngine(context.Background(), GenAIConfig{})
	assert.Error(t, err)
}
