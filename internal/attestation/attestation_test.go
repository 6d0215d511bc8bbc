package attestation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teeinfer/gateway/internal/backendclient/shared"
	"github.com/teeinfer/gateway/internal/domain"
)

type fakeStore struct {
	sigs map[string]domain.ChatSignature
}

func newFakeStore() *fakeStore {
	return &fakeStore{sigs: map[string]domain.ChatSignature{}}
}

func (f *fakeStore) UpsertChatSignature(_ context.Context, sig domain.ChatSignature) error {
	f.sigs[sig.ChatID+"|"+sig.SigningAlgo] = sig
	return nil
}

func (f *fakeStore) GetChatSignature(_ context.Context, chatID, signingAlgo string) (domain.ChatSignature, error) {
	sig, ok := f.sigs[chatID+"|"+signingAlgo]
	if !ok {
		return domain.ChatSignature{}, assertNotFound
	}

	return sig, nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const assertNotFound = sentinelErr("not found")

type fakeReporter struct {
	verifiable bool
	report     []byte
	certChain  []byte
	err        error
}

func (f *fakeReporter) Verifiable() bool { return f.verifiable }

func (f *fakeReporter) AttestationReport(_ context.Context) ([]byte, []byte, error) {
	return f.report, f.certChain, f.err
}

func TestBind_NonVerifiableBackendReturnsErrNotVerifiable(t *testing.T) {
	b := New(newFakeStore())

	err := b.Bind(context.Background(), "conv_1", "hello", &fakeReporter{verifiable: false})
	require.ErrorIs(t, err, shared.ErrNotVerifiable)
}

func TestBind_StoresReportAsSignature(t *testing.T) {
	store := newFakeStore()
	b := New(store)

	reporter := &fakeReporter{verifiable: true, report: []byte("report-bytes"), certChain: []byte("cert-chain")}

	err := b.Bind(context.Background(), "conv_1", "hello world", reporter)
	require.NoError(t, err)

	sig, err := store.GetChatSignature(context.Background(), "conv_1", signingAlgo)
	require.NoError(t, err)
	require.Equal(t, []byte("report-bytes"), sig.Signature)
	require.Equal(t, "hello world", sig.Text)
}

func TestVerify_MatchingReportAndCertChain(t *testing.T) {
	store := newFakeStore()
	b := New(store)

	reporter := &fakeReporter{verifiable: true, report: []byte("report-bytes"), certChain: []byte("cert-chain")}
	require.NoError(t, b.Bind(context.Background(), "conv_1", "hello", reporter))

	ok, err := b.Verify(context.Background(), "conv_1", []byte("report-bytes"), []byte("cert-chain"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerify_MismatchedCertChainFails(t *testing.T) {
	store := newFakeStore()
	b := New(store)

	reporter := &fakeReporter{verifiable: true, report: []byte("report-bytes"), certChain: []byte("cert-chain")}
	require.NoError(t, b.Bind(context.Background(), "conv_1", "hello", reporter))

	ok, err := b.Verify(context.Background(), "conv_1", []byte("report-bytes"), []byte("different-chain"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerify_UnknownChatReturnsError(t *testing.T) {
	b := New(newFakeStore())

	_, err := b.Verify(context.Background(), "conv_unknown", []byte("x"), []byte("y"))
	require.Error(t, err)
}
