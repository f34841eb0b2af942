package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MASanner/findbottomlessmimosas-com/internal/auth"
	"github.com/MASanner/findbottomlessmimosas-com/internal/merge"
	"github.com/MASanner/findbottomlessmimosas-com/internal/metrics"
	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
	"github.com/MASanner/findbottomlessmimosas-com/internal/normalize"
	"github.com/MASanner/findbottomlessmimosas-com/internal/pipeline"
	"github.com/MASanner/findbottomlessmimosas-com/internal/store"
	"github.com/MASanner/findbottomlessmimosas-com/internal/targets"
)

const testSecret = "s3cret"

// newTestRouter builds a router over a replay-only orchestrator backed by a
// temp SQLite store.
func newTestRouter(t *testing.T, admin *auth.Authorizer) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	reg := prometheus.NewRegistry()
	orch := pipeline.NewOrchestrator(
		auth.NewSecret(testSecret),
		nil,
		st,
		pipeline.NewProcessor(normalize.New(normalize.AddressLenient), merge.New(st)),
		targets.Defaults,
		pipeline.Options{MaxConcurrency: 2},
		metrics.New(reg),
	)
	return buildRouter(orch, testSecret, admin, []string{"https://findbottomlessmimosas.com"}, reg), st
}

func post(t *testing.T, h http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRouter_ScrapeUnauthorized(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	for _, headers := range []map[string]string{nil, {cronSecretHeader: "nope"}} {
		rr := post(t, h, "/api/scrape-mimosas", headers)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rr.Body.String())
	}
}

func TestRouter_ScrapeNotConfigured(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rr := post(t, h, "/api/scrape-mimosas", map[string]string{cronSecretHeader: testSecret})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Not configured"}`, rr.Body.String())
}

func TestRouter_Reprocess(t *testing.T) {
	h, st := newTestRouter(t, nil)
	require.NoError(t, st.AppendCapture(context.Background(), model.RawCapture{
		URL: targets.Defaults[0].URLs[0], City: "Tampa", State: "FL", ScrapedAt: time.Now(),
		Payload: model.CapturePayload{Venues: []model.ExtractedVenue{{
			Name: "Joe's Brunch", Address: "123 Main St", PriceOrDeal: "$25",
			EvidenceSnippet: "bottomless mimosas all day",
		}}},
	}))

	rr := post(t, h, "/api/scrape-mimosas/reprocess", map[string]string{cronSecretHeader: testSecret})
	require.Equal(t, http.StatusOK, rr.Code)

	var stats model.RunStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.True(t, stats.OK)
	assert.Equal(t, "scrape_raw", stats.Source)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Published)
	require.Len(t, stats.Debug, 1)
	assert.Equal(t, 1, stats.Debug[0].Validated)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `mimosa_runs_total{mode="replay"} 1`)
}

func TestRouter_AdminRoute(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rr := post(t, h, "/api/admin/scrape", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	h, _ = newTestRouter(t, auth.NewSecret("admin-token"))

	rr = post(t, h, "/api/admin/scrape", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// The admin route forwards the server's own secret, so it gets past
	// authorization and stops at the missing extractor.
	rr = post(t, h, "/api/admin/scrape", map[string]string{"Authorization": "Bearer admin-token"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Not configured"}`, rr.Body.String())
}

func TestRouter_AdminCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, auth.NewSecret("admin-token"))

	req := httptest.NewRequest(http.MethodOptions, "/api/admin/scrape", nil)
	req.Header.Set("Origin", "https://findbottomlessmimosas.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://findbottomlessmimosas.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer  tok ")
	assert.Equal(t, "tok", bearerToken(req))
}

func TestRunFailedMessage_HidesDetail(t *testing.T) {
	assert.Equal(t, "Not configured", runFailedMessage(eris.Wrap(pipeline.ErrNotConfigured, "pipeline: run")))

	msg := runFailedMessage(eris.New("sqlite: upsert venue joe's brunch|123 main st: database is locked"))
	assert.Equal(t, "Run failed", msg)
	assert.NotContains(t, msg, "sqlite")
}
