package keycustody

import (
	"net/http"

	"github.com/admitd/admitd/internal/common/apperrors"
)

// Base custody error. Custody failures are cryptographic failures: they are
// never downgraded and never produce partial plaintext.
var (
	ErrCustody apperrors.Error = apperrors.New("key custody error").SetStatusCode(http.StatusInternalServerError)
)

var (
	ErrInvalidMasterSecret apperrors.Error = ErrCustody.New("invalid master secret")
	ErrEncryptionFailed    apperrors.Error = ErrCustody.New("encryption failed")
	ErrDecryptionFailed    apperrors.Error = ErrCustody.New("decryption failed")
	ErrMalformedBlob       apperrors.Error = ErrCustody.New("malformed ciphertext blob")
)
