package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fsindex/internal/app"
	"fsindex/internal/config"
	"fsindex/internal/encryption"
	"fsindex/internal/vault"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an IndexApp. The caller must defer app.Close().
// command identifies the CLI command being run.
func newApp(command string) (*app.IndexApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewIndexApp(cfg, command)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on stderr. Input is hidden on a terminal and read
// as a plain line otherwise, so passphrases can be piped in.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var rootCmd = &cobra.Command{
	Use:          "fsindex",
	Short:        "Filesystem metadata indexer",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s (level %s)\n", cfg.LogDir, cfg.Log.Level)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// vault command
var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the vault the index is published to",
}

var vaultCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the configured vault is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if len(cfg.Vaults) == 0 {
			return fmt.Errorf("no vaults configured")
		}

		v, err := vault.NewVaultFromConfig(cfg.Vaults[0])
		if err != nil {
			return fmt.Errorf("creating vault: %w", err)
		}
		if err := v.ValidateSetup(); err != nil {
			return fmt.Errorf("vault %s: %w", cfg.Vaults[0].Name, err)
		}

		version, err := v.GetMetadataVersion(cfg.HostID, app.MetadataName)
		if err != nil {
			return fmt.Errorf("reading published version: %w", err)
		}
		fmt.Printf("Vault %s is reachable; published version: %d\n", cfg.Vaults[0].Name, version)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to encrypt the published index",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if enc.IsConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}

		var passphrase string
		if enc.NeedsPassphrase() {
			passphrase, err = readPassphrase("New passphrase: ")
			if err != nil {
				return err
			}
			confirm, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if passphrase != confirm {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Encryption keys generated.")
		if a, ok := enc.(*encryption.AgeEncryptor); ok {
			if pub, err := a.PublicKey(); err == nil {
				fmt.Printf("Public key: %s\n", pub)
			}
		}
		return nil
	},
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index DIR...",
	Short: "Index directories into a new snapshot",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp("index")
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		res, err := a.Index(args, force)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}

		writeIndexResult(os.Stdout, res, time.Since(start))
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch DIR...",
	Short: "Index directories and record their changes until interrupted",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("watch")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := a.Watch(ctx, args)
		if err != nil {
			return fmt.Errorf("watching failed: %w", err)
		}

		fmt.Printf("Snapshot #%d stopped: %d baseline entries, %d changes recorded\n",
			res.Snapshot.ID, res.Baseline, res.Changes)
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log PATH",
	Short: "View the recorded history of a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("log")
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.GetNodeHistory(args[0])
		if err != nil {
			return err
		}

		if len(versions) == 0 {
			fmt.Println("No records for this path.")
			return nil
		}
		writeNodeVersions(os.Stdout, versions)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View snapshot history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		snapshots, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(snapshots) == 0 {
			fmt.Println("No snapshots recorded.")
			return nil
		}
		writeSnapshots(os.Stdout, snapshots)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the published index database",
}

var dbPullCmd = &cobra.Command{
	Use:   "pull OUT",
	Short: "Download and decrypt the published index database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		var passphrase string
		if enc.NeedsPassphrase() {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		version, err := app.PullDatabase(cfg, args[0], passphrase)
		if err != nil {
			return err
		}
		fmt.Printf("Pulled version %d to %s\n", version, args[0])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	vaultCmd.AddCommand(vaultCheckCmd)
	keysCmd.AddCommand(keysInitCmd)
	dbCmd.AddCommand(dbPullCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolP("force", "f", false, "Skip the comparison with the previous snapshot")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of snapshots to show")
	rootCmd.AddCommand(dbCmd)
}
