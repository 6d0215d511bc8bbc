package shared

import "github.com/teeinfer/gateway/internal/xerrors"

// ErrNotVerifiable is returned by AttestationReport on external-provider
// clients. Attempting to attach attestation on such a response is a
// classification error, not a crash.
var ErrNotVerifiable = xerrors.New(xerrors.KindValidation, "backend does not support attestation")
