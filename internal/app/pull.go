package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"fsindex/internal/config"
	"fsindex/internal/database"
	"fsindex/internal/encryption"
	"fsindex/internal/vault"
)

// PullDatabase downloads the index database published for this host,
// decrypts it and writes it to outPath, which must not exist. The copy is
// opened afterwards to check that it is a complete index. Returns the
// published version.
func PullDatabase(cfg *config.Config, outPath string, passphrase string) (int64, error) {
	if len(cfg.Vaults) == 0 {
		return 0, fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(cfg.Vaults[0])
	if err != nil {
		return 0, fmt.Errorf("creating vault: %w", err)
	}

	version, err := v.GetMetadataVersion(cfg.HostID, MetadataName)
	if err != nil {
		return 0, fmt.Errorf("checking remote metadata version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("no database published for host %s", cfg.HostID)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return 0, fmt.Errorf("creating encryptor: %w", err)
	}
	dc, err := enc.Unlock(passphrase)
	if err != nil {
		return 0, fmt.Errorf("unlocking private key: %w", err)
	}

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return 0, fmt.Errorf("creating output file: %w", err)
	}

	// Stream the download straight into the decrypter.
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(v.GetMetadata(cfg.HostID, MetadataName, pw))
	}()

	decErr := dc.Decrypt(pr, out)
	pr.CloseWithError(decErr)
	closeErr := out.Close()
	if err := errors.Join(decErr, closeErr); err != nil {
		os.Remove(outPath)
		return 0, fmt.Errorf("downloading database: %w", err)
	}

	db, err := database.NewSQLiteDatabase(outPath)
	if err != nil {
		return 0, fmt.Errorf("opening pulled database: %w", err)
	}
	defer db.Close()
	if err := db.CheckMigrations(); err != nil {
		return 0, fmt.Errorf("pulled database is not a valid index: %w", err)
	}
	return version, nil
}
