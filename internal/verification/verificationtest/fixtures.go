// Package verificationtest holds shared fixtures for tests that drive a
// session through its stages.
package verificationtest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"kycgate/internal/verification/models"
	"kycgate/internal/verification/service"
	id "kycgate/pkg/domain"
)

var evidence = map[models.StageKind]string{
	models.StagePersonalInfo: `{"first_name":"Ada","last_name":"Lovelace","date_of_birth":"1990-04-12","national_id_last4":"1234"}`,
	models.StageDocuments:    `{"documents":[{"ref":"doc-passport","file_name":"passport.jpg","doc_type":"passport"}]}`,
	models.StageSelfie:       `{"frame_ref":"frame-1"}`,
	models.StageLiveness:     `{"video_ref":"liveness-1","challenges":["blink","turn_left"]}`,
	models.StageVoice:        `{"audio_ref":"audio-1","video_ref":"video-1","phrase":"my voice confirms my identity","duration_ms":3200}`,
}

// Evidence returns a well-formed payload for kind.
func Evidence(kind models.StageKind) json.RawMessage {
	return json.RawMessage(evidence[kind])
}

// SubmitAll walks every stage in order with the sample evidence and returns
// the final version.
func SubmitAll(ctx context.Context, t *testing.T, svc *service.Service, sessionID id.SessionID, version int64) int64 {
	t.Helper()
	for _, kind := range models.StageOrder() {
		sub, err := svc.SubmitStage(ctx, sessionID, version, kind, Evidence(kind))
		require.NoError(t, err, "submit %s", kind)
		version = sub.Version
	}
	return version
}
