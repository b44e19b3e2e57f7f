package testutil

import (
	"fsindex/internal/encryption"
	"fsindex/internal/indexer"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() indexer.Encryptor {
	return encryption.NewTestEncryptor()
}
