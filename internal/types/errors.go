package types

import "errors"

var (
	// Configuration errors are rejected before any external call.
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrEmptyQuery    = errors.New("query text is required")

	ErrUnsupportedInput = errors.New("unsupported input: only PDF documents are accepted")
	ErrEncryptedPDF     = errors.New("PDF is encrypted and couldn't be decrypted (needs password)")

	ErrUnsupportedClient  = errors.New("unsupported vector store client")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrEmbeddingMismatch  = errors.New("embedding provider returned an unexpected result")
)

// IsClientError reports whether err is the caller's fault rather than a dependency failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrUnsupportedInput) ||
		errors.Is(err, ErrEncryptedPDF)
}
