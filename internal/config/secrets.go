package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowcatalyst/messagerouter/internal/common/secrets"
)

// Sensitive config values may be given as "secret://<key>" instead of a
// literal. The key is resolved through the provider configured in the
// [secrets] config section or FLOWCATALYST_SECRETS_* environment
// variables (env, encrypted file, Vault, AWS or GCP Secret Manager).
const secretScheme = "secret://"

// resolveSecrets replaces secret:// references with values fetched from
// the secrets provider. The provider is only constructed when at least
// one reference is present.
func resolveSecrets(cfg *Config) error {
	refs := []*string{
		&cfg.MongoDB.URI,
		&cfg.Queue.STOMP.Login,
		&cfg.Queue.STOMP.Passcode,
		&cfg.Router.Mediation.SigningSecret,
		&cfg.Outbox.Database.DSN,
		&cfg.Platform.AuthToken,
		&cfg.Platform.AppKey,
		&cfg.Standby.RedisURL,
		&cfg.Stream.PostgresDSN,
	}

	var pending []*string
	for _, ref := range refs {
		if strings.HasPrefix(*ref, secretScheme) {
			pending = append(pending, ref)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	provider, err := secrets.NewProvider(&cfg.Secrets)
	if err != nil {
		return fmt.Errorf("creating secrets provider: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, ref := range pending {
		key := strings.TrimPrefix(*ref, secretScheme)
		value, err := provider.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("resolving secret %q: %w", key, err)
		}
		*ref = value
	}

	slog.Debug("Resolved secret references", "count", len(pending), "provider", provider.Name())
	return nil
}
