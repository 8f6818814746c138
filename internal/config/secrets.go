package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ProviderSecrets holds the signing material of a single payment provider.
type ProviderSecrets struct {
	WebhookSecret string
	KeySecret     string
}

// SecretsHolder serves provider secrets from the environment, optionally
// overlaid on a YAML file that is reloaded when it changes on disk.
type SecretsHolder struct {
	current atomic.Value // holds map[string]ProviderSecrets
}

// NewSecretsHolder reads <PROVIDER>_WEBHOOK_SECRET and <PROVIDER>_KEY_SECRET for
// every configured provider. Environment values take precedence over the file.
func NewSecretsHolder(cfg Config, log *zap.Logger) (*SecretsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := strings.TrimSpace(cfg.Payment.SecretsFile)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	providers := cfg.Payment.Providers
	holder := &SecretsHolder{}
	holder.current.Store(readSecrets(v, providers))

	if path != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			holder.current.Store(readSecrets(v, providers))
			log.Info("payment secrets reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticSecrets returns a holder with a fixed set of secrets.
func NewStaticSecrets(secrets map[string]ProviderSecrets) *SecretsHolder {
	snapshot := make(map[string]ProviderSecrets, len(secrets))
	for provider, s := range secrets {
		snapshot[normalizeProvider(provider)] = ProviderSecrets{
			WebhookSecret: strings.TrimSpace(s.WebhookSecret),
			KeySecret:     strings.TrimSpace(s.KeySecret),
		}
	}
	holder := &SecretsHolder{}
	holder.current.Store(snapshot)
	return holder
}

// WebhookSecret returns the push path signing secret, empty when unset.
func (h *SecretsHolder) WebhookSecret(provider string) string {
	return h.get(provider).WebhookSecret
}

// KeySecret returns the confirm path API key secret, empty when unset.
func (h *SecretsHolder) KeySecret(provider string) string {
	return h.get(provider).KeySecret
}

func (h *SecretsHolder) get(provider string) ProviderSecrets {
	if h == nil {
		return ProviderSecrets{}
	}
	snapshot, _ := h.current.Load().(map[string]ProviderSecrets)
	return snapshot[normalizeProvider(provider)]
}

func readSecrets(v *viper.Viper, providers []string) map[string]ProviderSecrets {
	out := make(map[string]ProviderSecrets, len(providers))
	for _, provider := range providers {
		provider = normalizeProvider(provider)
		if provider == "" {
			continue
		}
		out[provider] = ProviderSecrets{
			WebhookSecret: strings.TrimSpace(v.GetString(provider + ".webhook_secret")),
			KeySecret:     strings.TrimSpace(v.GetString(provider + ".key_secret")),
		}
	}
	return out
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
