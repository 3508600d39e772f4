// Package main provides a CLI tool to migrate stored OAuth credentials from
// plaintext to encrypted storage.
//
// The credential file written before ENCRYPTION_KEY was configured holds
// tokens in plaintext. This tool rewrites every entry encrypted with
// AES-256-GCM; already-encrypted entries pass through untouched.
//
// Usage:
//
//	migrate-tokens [--dry-run] [--file PATH]
//
// Flags:
//
//	--dry-run: Show what would be migrated without making changes
//	--file:    Credential file to migrate (default: DATA_DIR/tokens.json)
//
// Environment Variables:
//
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
//
// Example:
//
//	export ENCRYPTION_KEY="$(openssl rand -base64 32)"
//	./migrate-tokens --dry-run
//	./migrate-tokens
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/onnwee/stream-hub/config"
	"github.com/onnwee/stream-hub/crypto"
	"github.com/onnwee/stream-hub/oauth"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	file := flag.String("file", "", "Credential file to migrate (default: DATA_DIR/tokens.json)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required for migration")
		os.Exit(1)
	}
	encryptor, err := crypto.NewAESEncryptor(encryptionKey)
	if err != nil {
		slog.Error("failed to initialize encryptor", slog.Any("error", err))
		os.Exit(1)
	}

	path := *file
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			slog.Error("config load failed", slog.Any("error", err))
			os.Exit(1)
		}
		path = cfg.CredentialFile
	}

	if err := migrateFile(path, encryptor, *dryRun); err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// migrateFile rewrites the credential file with every entry encrypted.
func migrateFile(path string, encryptor crypto.Encryptor, dryRun bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator flags
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("no credential file, nothing to migrate", slog.String("file", path))
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	// Peek at the raw entries to count what is still plaintext.
	var raw map[string]struct {
		Encrypted bool `json:"encrypted"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	plaintext := 0
	for platform, entry := range raw {
		if !entry.Encrypted {
			plaintext++
			slog.Info("plaintext credential found", slog.String("platform", platform))
		}
	}
	if plaintext == 0 {
		slog.Info("all credentials already encrypted", slog.Int("total", len(raw)))
		return nil
	}
	if dryRun {
		slog.Info("dry run: would encrypt credentials", slog.Int("count", plaintext))
		return nil
	}

	// Load decodes plaintext and encrypted entries alike; Save writes
	// everything back encrypted.
	store := oauth.NewFileStore(path, encryptor)
	creds, err := store.Load()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if err := store.Save(creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	slog.Info("migration completed successfully", slog.Int("encrypted", plaintext), slog.Int("total", len(creds)))
	return nil
}
