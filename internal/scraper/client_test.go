package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secutils-dev/scheduler/internal/apperrors"
	"github.com/secutils-dev/scheduler/internal/model"
)

func TestFetchContent_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/content", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"timestamp": 946720800, "content": "hello"})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	data, ts, err := c.FetchContent(context.Background(), model.Tracker{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(*data))
	assert.Equal(t, int64(946720800), ts)
}

func TestFetchContent_PreservesScraperErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "some client-error"})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	_, _, err := c.FetchContent(context.Background(), model.Tracker{URL: "https://example.com"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindRemoteScraper))
	assert.Equal(t, "some client-error", apperrors.UserMessage(err))
}

func TestFetchResources_DecodesScriptsAndStyles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"timestamp": 100,
			"scripts":   []map[string]any{{"url": "a.js", "digest": "abc"}},
			"styles":    []map[string]any{{"url": "a.css", "digest": "def"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	data, ts, err := c.FetchResources(context.Background(), model.Tracker{URL: "https://example.com"})
	require.NoError(t, err)
	require.Len(t, data.Scripts, 1)
	require.Len(t, data.Styles, 1)
	assert.Equal(t, "a.js", data.Scripts[0].URL)
	assert.Equal(t, int64(100), ts)
}
