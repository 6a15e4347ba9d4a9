package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/internal/capability"
	"kycgate/internal/platform/config"
	"kycgate/internal/platform/middleware"
	reviewhandler "kycgate/internal/review/handler"
	verificationhandler "kycgate/internal/verification/handler"
	"kycgate/internal/verification/models"
	"kycgate/internal/verification/service"
	"kycgate/internal/verification/verificationtest"
	dErrors "kycgate/pkg/domain-errors"
)

const testJWTKey = "server-test-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("KYC_SUBJECT_HASH_KEY", "server-test-hash-key")
	cfg, errs := config.Load("")
	require.Empty(t, errs)
	cfg.ReviewerJWTKey = testJWTKey

	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), false)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
}

func TestVerificationAndReviewWiring(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodPost, "/sessions", "", map[string]string{"subject_ref": "applicant-9"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var started verificationhandler.StartSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	base := "/sessions/" + started.SessionID.String()

	version := started.Version
	for _, kind := range models.StageOrder() {
		resp := do(t, srv, http.MethodPost, base+"/stages/"+string(kind), "", map[string]any{
			"version":  version,
			"evidence": verificationtest.Evidence(kind),
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, "stage %s", kind)
		var sub service.Submission
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
		version = sub.Version
	}
	resp = do(t, srv, http.MethodPost, base+"/complete", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	version++

	override := map[string]any{"version": version, "decision": "reject", "reason": "document photo reused from another case"}

	t.Run("override without token is rejected", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, base+"/override", "", override)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, string(dErrors.CodeUnauthorized), body["error"])
	})

	t.Run("reviewer token applies the override", func(t *testing.T) {
		token, err := middleware.IssueReviewerToken(testJWTKey, "reviewer-3", time.Minute)
		require.NoError(t, err)

		resp := do(t, srv, http.MethodPost, base+"/override", token, override)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var decision models.OverrideDecision
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decision))
		assert.Equal(t, "reviewer-3", decision.ReviewerID)
		assert.Equal(t, models.StatusRejected, decision.ResultingStatus)

		resp = do(t, srv, http.MethodGet, base+"/history", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var history reviewhandler.HistoryResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
		assert.Len(t, history.Decisions, 2)
	})
}

func TestBuildRegistryPrefersRemoteDetectors(t *testing.T) {
	cfg := &config.Config{Detectors: map[capability.Variant]string{
		capability.VariantGANFace: "http://gan.internal/analyze",
	}}
	registry, err := buildRegistry(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	gan, err := registry.Get(capability.VariantGANFace)
	require.NoError(t, err)
	assert.Equal(t, "remote-gan_face", gan.ID())

	voice, err := registry.Get(capability.VariantVoiceClone)
	require.NoError(t, err)
	assert.Equal(t, "static-voice_clone", voice.ID())
	assert.Empty(t, registry.Missing(capability.AllVariants()...))
}
