// Package attestation implements the Attestation Binder: storing and
// verifying the TEE-signed transcript a verifiable backend returns for a
// chat, keyed by (chat_id, signing_algo).
package attestation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/teeinfer/gateway/internal/backendclient/shared"
	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/xerrors"
)

// signingAlgo identifies the signature scheme this binder understands.
// The composite key (chat_id, signing_algo) lets additional algorithms
// be introduced later without migrating existing rows.
const signingAlgo = "teeinfer-report-v1"

// Store is the persistence surface the binder needs.
type Store interface {
	UpsertChatSignature(ctx context.Context, sig domain.ChatSignature) error
	GetChatSignature(ctx context.Context, chatID, signingAlgo string) (domain.ChatSignature, error)
}

// Reporter is the subset of the backend Client used to fetch an attestation
// report from a backend that claims to be verifiable.
type Reporter interface {
	Verifiable() bool
	AttestationReport(ctx context.Context) (report []byte, certChain []byte, err error)
}

// Binder records and verifies attestation signatures.
type Binder struct {
	store Store
}

func New(store Store) *Binder {
	return &Binder{store: store}
}

// signingAddressFor derives a stable identifier for the signing key from
// its certificate chain. This binder treats the chain as opaque bytes
// rather than parsing it as X.509, since verification here only needs to
// recognize "same signer, same chat" across Bind/Verify calls.
func signingAddressFor(certChain []byte) string {
	sum := sha256.Sum256(certChain)
	return hex.EncodeToString(sum[:])
}

// Bind fetches the backend's attestation report for chatID and persists
// the signature. Called only when the backend is verifiable; a
// non-verifiable backend is a classification outcome handled by the
// caller before Bind is ever invoked — Bind itself returns
// ErrNotVerifiable defensively if called on one anyway.
func (b *Binder) Bind(ctx context.Context, chatID, text string, client Reporter) error {
	if !client.Verifiable() {
		return shared.ErrNotVerifiable
	}

	report, certChain, err := client.AttestationReport(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.KindUpstreamError, "fetch attestation report", err)
	}

	sig := domain.ChatSignature{
		ChatID:         chatID,
		Text:           text,
		Signature:      report,
		SigningAddress: signingAddressFor(certChain),
		SigningAlgo:    signingAlgo,
		CreatedAt:      time.Now(),
	}

	return b.store.UpsertChatSignature(ctx, sig)
}

// Verify reports whether the stored signature for chatID matches the
// report bytes and cert chain the caller independently obtained. The
// plaintext chat text is never logged by this package; only its
// presence/absence is observable from the returned error.
func (b *Binder) Verify(ctx context.Context, chatID string, report, certChain []byte) (bool, error) {
	sig, err := b.store.GetChatSignature(ctx, chatID, signingAlgo)
	if err != nil {
		return false, xerrors.Wrap(xerrors.KindNotFound, "no signature recorded for chat", err)
	}

	if sig.SigningAddress != signingAddressFor(certChain) {
		return false, nil
	}

	if len(sig.Signature) != len(report) {
		return false, nil
	}

	for i := range sig.Signature {
		if sig.Signature[i] != report[i] {
			return false, nil
		}
	}

	return true, nil
}
