package notification

import (
	"github.com/flowcatalyst/messagerouter/internal/config"
)

// FromConfig builds a batching service with all enabled delegate
// channels. Returns nil when no channel is enabled so callers can
// skip wiring notifications entirely.
func FromConfig(cfg config.NotificationsConfig) *BatchingService {
	var delegates []Service

	if cfg.Email.Enabled {
		delegates = append(delegates, NewEmailService(&EmailConfig{
			SMTPHost:    cfg.Email.SMTPHost,
			SMTPPort:    cfg.Email.SMTPPort,
			Username:    cfg.Email.Username,
			Password:    cfg.Email.Password,
			FromAddress: cfg.Email.FromAddress,
			ToAddress:   cfg.Email.ToAddress,
			Enabled:     true,
		}))
	}

	if cfg.Teams.Enabled {
		delegates = append(delegates, NewTeamsService(&TeamsConfig{
			WebhookURL: cfg.Teams.WebhookURL,
			Enabled:    true,
		}))
	}

	if len(delegates) == 0 {
		return nil
	}

	batchCfg := DefaultBatchingConfig()
	if cfg.MinSeverity != "" {
		batchCfg.MinSeverity = cfg.MinSeverity
	}
	if cfg.BatchWindow > 0 {
		batchCfg.BatchWindow = cfg.BatchWindow
	}

	return NewBatchingService(delegates, batchCfg)
}
