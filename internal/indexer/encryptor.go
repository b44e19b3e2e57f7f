package indexer

import "io"

// Encryptor encrypts published index databases.
// Encryption uses the public key only, with no user intervention.
// Decryption requires a passphrase to unlock the private key, producing a
// DecryptionContext for the session.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `fsindex keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if the encryptor's keys exist.
	IsConfigured() bool

	// NeedsPassphrase reports whether Setup and Unlock use the passphrase.
	NeedsPassphrase() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
