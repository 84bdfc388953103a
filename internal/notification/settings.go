package notification

import (
	"github.com/tasklight/tasklight/internal/config"
)

// ConfigureFromSettings builds providers from stored settings and registers
// the enabled ones with the manager. Disabled providers are unregistered, so
// this can be called again after settings change.
func (m *Manager) ConfigureFromSettings(loader *config.Loader) {
	if loader.Bool("notifications.webhook.enabled", false) {
		m.RegisterProvider("webhook", NewWebhookProvider(WebhookConfig{
			URL:     loader.String("notifications.webhook.url", ""),
			Method:  loader.String("notifications.webhook.method", "POST"),
			Body:    loader.String("notifications.webhook.body", ""),
			Enabled: true,
		}))
	} else {
		m.UnregisterProvider("webhook")
	}

	if loader.Bool("notifications.discord.enabled", false) {
		m.RegisterProvider("discord", NewDiscordProvider(DiscordConfig{
			WebhookURL: loader.String("notifications.discord.webhook_url", ""),
			Username:   loader.String("notifications.discord.username", ""),
			Enabled:    true,
		}))
	} else {
		m.UnregisterProvider("discord")
	}
}
