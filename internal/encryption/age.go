package encryption

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"fsindex/internal/config"
	"fsindex/internal/indexer"
)

// AgeEncryptor seals published index databases to an X25519 age key pair.
// The recipient file is plaintext, so runs that only publish never prompt.
// The identity file is armored and sealed with the passphrase; it is only
// read when a published database is pulled back.
type AgeEncryptor struct {
	recipientPath string
	identityPath  string
}

var _ indexer.Encryptor = (*AgeEncryptor)(nil)

func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		recipientPath: cfg.PublicKeyPath,
		identityPath:  cfg.PrivateKeyPath,
	}
}

func (e *AgeEncryptor) keyFiles() []string {
	return []string{e.recipientPath, e.identityPath}
}

// Setup generates the key pair. Existing key files are never replaced:
// databases published under them would become unreadable.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return errors.New("passphrase must not be empty")
	}
	for _, p := range e.keyFiles() {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("refusing to overwrite key file %s", p)
		}
	}
	for _, p := range e.keyFiles() {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := sealIdentity(e.identityPath, identity, passphrase); err != nil {
		os.Remove(e.identityPath)
		return err
	}
	recipient := identity.Recipient().String() + "\n"
	if err := os.WriteFile(e.recipientPath, []byte(recipient), 0644); err != nil {
		os.Remove(e.identityPath)
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// sealIdentity writes identity to a new file at path, encrypted to the
// passphrase and wrapped in ASCII armor.
func sealIdentity(path string, identity *age.X25519Identity, passphrase string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer f.Close()

	lock, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("deriving key from passphrase: %w", err)
	}

	aw := armor.NewWriter(f)
	w, err := age.Encrypt(aw, lock)
	if err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("armoring private key: %w", err)
	}
	return f.Sync()
}

// Encrypt streams a database copy from r to w, sealed to the public key.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := e.recipient()
	if err != nil {
		return err
	}

	sealed, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("starting encryption: %w", err)
	}
	if _, err := io.Copy(sealed, r); err != nil {
		return fmt.Errorf("encrypting database: %w", err)
	}
	return sealed.Close()
}

// Unlock opens the private key with passphrase. The returned context
// decrypts databases fetched from the vault.
func (e *AgeEncryptor) Unlock(passphrase string) (indexer.DecryptionContext, error) {
	f, err := os.Open(e.identityPath)
	if err != nil {
		return nil, fmt.Errorf("opening private key: %w", err)
	}
	defer f.Close()

	key, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving key from passphrase: %w", err)
	}

	plain, err := age.Decrypt(armor.NewReader(f), key)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key (wrong passphrase?): %w", err)
	}

	identities, err := age.ParseIdentities(plain)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) != 1 {
		return nil, fmt.Errorf("private key file holds %d identities, want 1", len(identities))
	}
	return &AgeDecryptionContext{identity: identities[0]}, nil
}

// IsConfigured reports whether both key files are present.
func (e *AgeEncryptor) IsConfigured() bool {
	for _, p := range e.keyFiles() {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func (e *AgeEncryptor) NeedsPassphrase() bool { return true }

// PublicKey returns the age1... recipient string.
func (e *AgeEncryptor) PublicKey() (string, error) {
	data, err := os.ReadFile(e.recipientPath)
	if err != nil {
		return "", fmt.Errorf("reading public key: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (e *AgeEncryptor) recipient() (age.Recipient, error) {
	pub, err := e.PublicKey()
	if err != nil {
		return nil, err
	}
	r, err := age.ParseX25519Recipient(pub)
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", e.recipientPath, err)
	}
	return r, nil
}

// AgeDecryptionContext decrypts pulled databases with an unlocked identity.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ indexer.DecryptionContext = (*AgeDecryptionContext)(nil)

func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, c.identity)
	if err != nil {
		return fmt.Errorf("opening encrypted database: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("decrypting database: %w", err)
	}
	return nil
}
