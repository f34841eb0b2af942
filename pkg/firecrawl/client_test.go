package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-api-key", WithBaseURL(srv.URL))
	return srv, c
}

func TestScrape(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantErr    bool
		wantStatus int
	}{
		{
			name: "json extraction",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/scrape", r.URL.Path)
				assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req ScrapeRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "https://www.yelp.com/search", req.URL)
				assert.Equal(t, []string{FormatJSON, FormatMarkdown}, req.Formats)
				require.NotNil(t, req.JSONOptions)
				assert.Equal(t, "list venues", req.JSONOptions.Prompt)

				w.Write([]byte(`{"success":true,"data":{"markdown":"# Joe's","json":{"restaurants":[{"name":"Joe's"}]},"metadata":{"statusCode":200}}}`))
			},
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit"}`))
			},
			wantErr:    true,
			wantStatus: 429,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal server error"}`))
			},
			wantErr:    true,
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newTestServer(t, tt.handler)
			resp, err := c.Scrape(context.Background(), ScrapeRequest{
				URL:         "https://www.yelp.com/search",
				Formats:     []string{FormatJSON, FormatMarkdown},
				JSONOptions: &JSONOptions{Prompt: "list venues"},
			})

			if tt.wantErr {
				require.Error(t, err)
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.True(t, resp.Success)
			assert.Equal(t, "# Joe's", resp.Data.Markdown)
			assert.JSONEq(t, `{"restaurants":[{"name":"Joe's"}]}`, string(resp.Data.JSON))
			assert.Equal(t, 200, resp.Data.Metadata.StatusCode)
		})
	}
}

func TestScrape_BadJSON(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	_, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestSearchURLs(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bottomless mimosas Tampa FL", req.Query)
		assert.Equal(t, 2, req.Limit)

		w.Write([]byte(`{"success":true,"data":[{"url":"https://a.example"},{"url":""},{"url":"https://b.example"},{"url":"https://c.example"}]}`))
	})

	urls, err := SearchURLs(context.Background(), c, "bottomless mimosas Tampa FL", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, urls)
}

func TestSearchURLs_Error(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	})
	_, err := SearchURLs(context.Background(), c, "q", 5)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{StatusCode: 503, Body: "busy"}
	assert.Equal(t, "firecrawl: HTTP 503: busy", err.Error())
}
