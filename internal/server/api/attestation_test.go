package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/teeinfer/gateway/internal/attestation"
	"github.com/teeinfer/gateway/internal/domain"
)

// signingAddress mirrors attestation's unexported signingAddressFor, the
// only way a black-box test can construct a matching stored signature.
func signingAddress(certChain []byte) string {
	sum := sha256.Sum256(certChain)
	return hex.EncodeToString(sum[:])
}

type fakeAttestationStore struct {
	sigs map[string]domain.ChatSignature
}

func (f *fakeAttestationStore) UpsertChatSignature(_ context.Context, sig domain.ChatSignature) error {
	f.sigs[sig.ChatID] = sig
	return nil
}

func (f *fakeAttestationStore) GetChatSignature(_ context.Context, chatID, _ string) (domain.ChatSignature, error) {
	sig, ok := f.sigs[chatID]
	if !ok {
		return domain.ChatSignature{}, http.ErrNoCookie
	}

	return sig, nil
}

func TestVerifySignature_MatchingReport(t *testing.T) {
	gin.SetMode(gin.TestMode)

	certChain := []byte("cert-chain-bytes")
	report := []byte("report-bytes")

	store := &fakeAttestationStore{sigs: map[string]domain.ChatSignature{
		"chat_1": {
			ChatID:         "chat_1",
			Signature:      report,
			SigningAddress: signingAddress(certChain),
			SigningAlgo:    "teeinfer-report-v1",
			CreatedAt:      time.Now(),
		},
	}}

	h := NewAttestationHandlers(attestation.New(store))

	body, err := json.Marshal(verifyRequest{
		ChatID:    "chat_1",
		Report:    base64.StdEncoding.EncodeToString(report),
		CertChain: base64.StdEncoding.EncodeToString(certChain),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/attestation/verify", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.VerifySignature(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"verified":true`)
}
