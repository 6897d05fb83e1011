// Command apikey mints or revokes API keys for the print server.
//
//	apikey -name ci-bot -scopes generate,history
//	apikey -revoke 7a1c...-uuid
//
// The raw key is printed once; only its bcrypt hash is stored.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/frontier-design/projectory-web-to-print/internal/api/middleware"
	"github.com/frontier-design/projectory-web-to-print/internal/config"
	"github.com/frontier-design/projectory-web-to-print/internal/store"
	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

const (
	keyPrefix      = "wtp_"
	keyRandomLen   = 24
	commandTimeout = 30 * time.Second
)

var knownScopes = []string{models.ScopeGenerate, models.ScopeHistory}

type keyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

func main() {
	var (
		name   = flag.String("name", "", "human readable key name (required unless -revoke)")
		scopes = flag.String("scopes", models.ScopeGenerate, "comma separated scopes: generate, history")
		revoke = flag.String("revoke", "", "ID of the key to revoke")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := run(*name, *scopes, *revoke); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(name, scopes, revokeID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	ks := store.NewPostgresStore(pool)
	if revokeID != "" {
		return revokeKey(ctx, ks, revokeID, os.Stdout)
	}
	return createKey(ctx, ks, rand.Reader, name, scopes, os.Stdout)
}

func createKey(ctx context.Context, ks keyStore, entropy io.Reader, name, scopeList string, out io.Writer) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("-name is required")
	}
	scopes, err := parseScopes(scopeList)
	if err != nil {
		return err
	}

	raw, err := mintKey(entropy)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	key := &models.APIKey{
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:mw.KeyPrefixLen],
		Scopes:    scopes,
	}
	if err := ks.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	fmt.Fprintf(out, "id:     %s\nname:   %s\nscopes: %s\nkey:    %s\n\nStore the key now; it cannot be shown again.\n",
		key.ID, key.Name, strings.Join(key.Scopes, ","), raw)
	return nil
}

func revokeKey(ctx context.Context, ks keyStore, rawID string, out io.Writer) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid key id %q: %w", rawID, err)
	}
	if err := ks.RevokeAPIKey(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("key %s not found or already revoked", id)
		}
		return fmt.Errorf("revoke key: %w", err)
	}
	fmt.Fprintf(out, "revoked %s\n", id)
	return nil
}

func mintKey(entropy io.Reader) (string, error) {
	b := make([]byte, keyRandomLen)
	if _, err := io.ReadFull(entropy, b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(b), nil
}

func parseScopes(s string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(s, ",") {
		scope := strings.ToLower(strings.TrimSpace(part))
		if scope == "" || slices.Contains(out, scope) {
			continue
		}
		if !slices.Contains(knownScopes, scope) {
			return nil, fmt.Errorf("unknown scope %q (want one of %s)", scope, strings.Join(knownScopes, ", "))
		}
		out = append(out, scope)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one scope is required")
	}
	return out, nil
}
