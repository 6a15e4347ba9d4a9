package httpprovider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/internal/capability"
	"kycgate/internal/capability/contract"
)

func newDetector(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProviderContract(t *testing.T) {
	var got capability.Request
	var gotKey string
	srv := newDetector(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":0.83,"label":"StyleGAN3","artifacts":["grid","grid"],"confidence":0.9}`))
	})

	provider := New("gan-remote", capability.VariantGANFace, srv.URL, WithAPIKey("secret"))
	suite := &contract.ContractSuite{
		Provider:        provider,
		ExpectedID:      "gan-remote",
		ExpectedVariant: capability.VariantGANFace,
		Tests: []contract.ContractTest{{
			Name:    "decodes detector reply",
			Request: capability.Request{SessionID: "s-1", MediaRef: "frame.jpg"},
			ValidateFunc: func(r *capability.Response) error {
				assert.InDelta(t, 0.83, r.Score, 1e-9)
				assert.Equal(t, []string{"grid"}, r.Artifacts)
				return nil
			},
		}},
	}
	suite.Run(t)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, capability.VariantGANFace, got.Variant)
	assert.Equal(t, "frame.jpg", got.MediaRef)
}

func TestHTTPProviderErrorContract(t *testing.T) {
	statusServer := func(status int) string {
		return newDetector(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}).URL
	}
	slow := newDetector(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}).URL
	garbage := newDetector(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"score":`))
	}).URL

	cases := []contract.ErrorContractTest{
		{Name: "5xx is unavailable", Provider: New("p", capability.VariantSpoof, statusServer(http.StatusBadGateway)),
			Timeout: time.Second, ExpectedError: capability.ErrorUnavailable, ExpectedRetry: true},
		{Name: "429 is unavailable", Provider: New("p", capability.VariantSpoof, statusServer(http.StatusTooManyRequests)),
			Timeout: time.Second, ExpectedError: capability.ErrorUnavailable, ExpectedRetry: true},
		{Name: "4xx is bad data", Provider: New("p", capability.VariantSpoof, statusServer(http.StatusBadRequest)),
			Timeout: time.Second, ExpectedError: capability.ErrorBadData, ExpectedRetry: false},
		{Name: "slow detector times out", Provider: New("p", capability.VariantSpoof, slow),
			Timeout: 20 * time.Millisecond, ExpectedError: capability.ErrorTimeout, ExpectedRetry: true},
		{Name: "truncated body is bad data", Provider: New("p", capability.VariantSpoof, garbage),
			Timeout: time.Second, ExpectedError: capability.ErrorBadData, ExpectedRetry: false},
	}
	for i := range cases {
		cases[i].Run(t)
	}
}
