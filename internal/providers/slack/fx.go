package slack

import (
	"github.com/smallbiznis/paysync/internal/config"
	"go.uber.org/fx"
)

func NewProvider(cfg config.Config) Provider {
	if cfg.Alert.SlackWebhookURL == "" {
		return &NoOpProvider{}
	}
	return NewWebhookProvider(cfg.Alert.SlackWebhookURL, nil)
}

var Module = fx.Module("providers.slack",
	fx.Provide(NewProvider),
)
