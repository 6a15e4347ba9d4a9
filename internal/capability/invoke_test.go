package capability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycgate/internal/capability"
	"kycgate/internal/capability/mocks"
)

//go:generate mockgen -source=provider.go -destination=mocks/provider_mock.go -package=mocks Provider
type InvokeSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	provider *mocks.MockProvider
	req      capability.Request
}

func TestInvokeSuite(t *testing.T) {
	suite.Run(t, new(InvokeSuite))
}

func (s *InvokeSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.provider = mocks.NewMockProvider(s.ctrl)
	s.provider.EXPECT().ID().Return("mock-detector").AnyTimes()
	s.req = capability.Request{Variant: capability.VariantDeepfakeFace, MediaRef: "frame-1"}
}

func (s *InvokeSuite) TestValidResponseIsNormalized() {
	label := "StyleGAN3"
	s.provider.EXPECT().Analyze(gomock.Any(), s.req).Return(&capability.Response{
		Score:      0.7,
		Label:      &label,
		Artifacts:  []string{"blending", "blending", "eyes"},
		Confidence: 0.9,
	}, nil)

	resp, err := capability.Invoke(context.Background(), s.provider, s.req, time.Second)
	s.Require().NoError(err)
	s.Equal([]string{"blending", "eyes"}, resp.Artifacts)
	s.Equal("StyleGAN3", *resp.Label)
}

func (s *InvokeSuite) TestOutOfRangeScoreIsBadData() {
	s.provider.EXPECT().Analyze(gomock.Any(), s.req).Return(&capability.Response{Score: 1.2, Confidence: 1}, nil)

	_, err := capability.Invoke(context.Background(), s.provider, s.req, time.Second)
	s.Require().Error(err)
	s.Equal(capability.ErrorBadData, capability.GetCategory(err))
	s.False(capability.IsRetryable(err))
}

func (s *InvokeSuite) TestDeadlineBecomesTimeout() {
	s.provider.EXPECT().Analyze(gomock.Any(), s.req).DoAndReturn(
		func(ctx context.Context, _ capability.Request) (*capability.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := capability.Invoke(context.Background(), s.provider, s.req, 10*time.Millisecond)
	s.Require().Error(err)
	s.Equal(capability.ErrorTimeout, capability.GetCategory(err))
	s.True(capability.IsRetryable(err))
}

func (s *InvokeSuite) TestPlainErrorBecomesUnavailable() {
	s.provider.EXPECT().Analyze(gomock.Any(), s.req).Return(nil, errors.New("connection refused"))

	_, err := capability.Invoke(context.Background(), s.provider, s.req, time.Second)
	var pe *capability.ProviderError
	s.Require().ErrorAs(err, &pe)
	s.Equal(capability.ErrorUnavailable, pe.Category)
	s.Equal("mock-detector", pe.ProviderID)
}

func (s *InvokeSuite) TestProviderErrorPassesThrough() {
	original := capability.NewProviderError(capability.ErrorUnavailable, "mock-detector", "model offline", nil)
	s.provider.EXPECT().Analyze(gomock.Any(), s.req).Return(nil, original)

	_, err := capability.Invoke(context.Background(), s.provider, s.req, time.Second)
	s.Same(original, err)
}

func TestThresholds_Flag(t *testing.T) {
	th := capability.Thresholds{capability.VariantLipSync: 0.7}

	assert.False(t, th.Flag(capability.VariantDeepfakeFace, 0.5), "score equal to threshold is not flagged")
	assert.True(t, th.Flag(capability.VariantDeepfakeFace, 0.51))
	assert.False(t, th.Flag(capability.VariantLipSync, 0.6))
	assert.True(t, th.Flag(capability.VariantLipSync, 0.71))
}

func TestRegistry(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mocks.NewMockProvider(ctrl)
	p.EXPECT().Variant().Return(capability.VariantSpoof).AnyTimes()
	p.EXPECT().ID().Return("spoof-1").AnyTimes()

	reg, err := capability.NewRegistry(p)
	require.NoError(t, err)

	got, err := reg.Get(capability.VariantSpoof)
	require.NoError(t, err)
	assert.Equal(t, "spoof-1", got.ID())

	_, err = reg.Get(capability.VariantVoiceClone)
	require.ErrorIs(t, err, capability.ErrProviderNotFound)

	require.ErrorIs(t, reg.Register(p), capability.ErrDuplicateVariant)
	assert.Equal(t, []capability.Variant{capability.VariantVoiceClone}, reg.Missing(capability.VariantSpoof, capability.VariantVoiceClone))
}

func TestParseVariant(t *testing.T) {
	for _, v := range capability.AllVariants() {
		got, err := capability.ParseVariant(string(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := capability.ParseVariant("face_swap")
	require.Error(t, err)
}
