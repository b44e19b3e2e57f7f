package vault

import (
	"context"
	"fmt"

	"fsindex/internal/config"
	"fsindex/internal/indexer"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(cfg config.VaultConfig) (indexer.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		v, err := NewS3Vault(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
