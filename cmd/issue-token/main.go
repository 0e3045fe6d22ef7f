// Command issue-token mints a session token for local development.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"tenantry.org/internal/auth"
	"tenantry.org/internal/config"
	"tenantry.org/internal/obs"
)

func main() {
	logger := obs.NewLogger("info", "console", "issue-token")
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	var (
		user = flag.String("user", "", "User id to place in the token subject")
		ttl  = flag.Duration("ttl", cfg.Auth.TokenTTL, "Token lifetime")
	)
	flag.Parse()

	if *user == "" {
		logger.Fatal("usage: issue-token -user <id> [-ttl 1h]")
	}
	if cfg.IsProduction() {
		logger.Fatal("refusing to mint tokens in production")
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer), auth.WithTokenTTL(cfg.Auth.TokenTTL))
	if err != nil {
		logger.Fatal("token issuer", zap.Error(err))
	}
	token, expiresAt, err := issuer.Issue(*user, *ttl)
	if err != nil {
		logger.Fatal("issue token", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]string{
		"token":      token,
		"user_id":    *user,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}
