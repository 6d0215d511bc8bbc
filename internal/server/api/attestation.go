package api

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/attestation"
	"github.com/teeinfer/gateway/internal/xerrors"
)

type AttestationHandlers struct {
	Binder *attestation.Binder
}

func NewAttestationHandlers(binder *attestation.Binder) *AttestationHandlers {
	return &AttestationHandlers{Binder: binder}
}

type verifyRequest struct {
	ChatID    string `json:"chat_id"`
	Report    string `json:"report"`     // base64
	CertChain string `json:"cert_chain"` // base64
}

// VerifySignature handles POST /v1/attestation/verify: the caller
// independently obtains a report/cert_chain pair and asks whether it
// matches the signature this gateway recorded for chat_id.
func (h *AttestationHandlers) VerifySignature(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, xerrors.Wrap(xerrors.KindValidation, "decode verify request", err))
		return
	}

	report, err := base64.StdEncoding.DecodeString(req.Report)
	if err != nil {
		writeError(c, xerrors.Wrap(xerrors.KindValidation, "decode report", err))
		return
	}

	certChain, err := base64.StdEncoding.DecodeString(req.CertChain)
	if err != nil {
		writeError(c, xerrors.Wrap(xerrors.KindValidation, "decode cert_chain", err))
		return
	}

	ok, err := h.Binder.Verify(c.Request.Context(), req.ChatID, report, certChain)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat_id": req.ChatID, "verified": ok})
}
