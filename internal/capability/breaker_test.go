package capability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"kycgate/internal/capability"
	"kycgate/internal/capability/mocks"
	"kycgate/pkg/platform/circuit"
)

func TestBreakerShortCircuitsAfterFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockProvider(ctrl)
	inner.EXPECT().ID().Return("remote-spoof").AnyTimes()
	inner.EXPECT().Variant().Return(capability.VariantSpoof).AnyTimes()
	inner.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused")).Times(2)

	breaker := circuit.New("spoof", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	p := capability.WithBreaker(inner, breaker, nil)
	req := capability.Request{SessionID: "s", MediaRef: "blob://selfie"}

	for range 2 {
		_, err := capability.Invoke(context.Background(), p, req, time.Second)
		require.Error(t, err)
	}
	require.True(t, breaker.IsOpen())

	_, err := capability.Invoke(context.Background(), p, req, time.Second)
	assert.Equal(t, capability.ErrorUnavailable, capability.GetCategory(err))
	assert.ErrorContains(t, err, "circuit open")
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockProvider(ctrl)
	inner.EXPECT().ID().Return("remote-spoof").AnyTimes()
	inner.EXPECT().Variant().Return(capability.VariantSpoof).AnyTimes()
	inner.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, context.Canceled)

	breaker := circuit.New("spoof", circuit.WithFailureThreshold(1))
	p := capability.WithBreaker(inner, breaker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Analyze(ctx, capability.Request{})
	require.Error(t, err)
	assert.False(t, breaker.IsOpen())
}
