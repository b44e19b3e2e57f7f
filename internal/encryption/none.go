package encryption

import (
	"fmt"
	"io"

	"fsindex/internal/indexer"
)

// NoneEncryptor publishes the index database as plaintext.
type NoneEncryptor struct{}

var _ indexer.Encryptor = NoneEncryptor{}

func (NoneEncryptor) Setup(string) error { return nil }

func (NoneEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (NoneEncryptor) Unlock(string) (indexer.DecryptionContext, error) {
	return plainDecryptionContext{}, nil
}

func (NoneEncryptor) IsConfigured() bool    { return true }
func (NoneEncryptor) NeedsPassphrase() bool { return false }

type plainDecryptionContext struct{}

func (plainDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
