package actions

import (
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/config"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
)

// FromConfig wires the integrations that are configured. Slack takes the
// notification types; the webhook, when set, receives everything else.
// assign_to_user is always handled in process.
func FromConfig(cfg config.Config, logger zerolog.Logger) *Dispatcher {
	d := NewDispatcher(cfg.ActionTimeout, cfg.ActionRetries, logger)
	d.Register(routing.ActionAssignToUser, NewAssigner())

	if cfg.ActionWebhookURL != "" {
		d.Fallback = NewWebhookHandler(cfg.ActionWebhookURL, cfg.ActionRatePerSec)
	}
	if cfg.SlackBotToken != "" {
		n := &SlackNotifier{
			Client:            slack.New(cfg.SlackBotToken),
			DefaultChannel:    cfg.SlackDefaultChannel,
			EscalationChannel: cfg.SlackEscalationChannel,
		}
		d.Register(routing.ActionSendNotification, n)
		d.Register(routing.ActionEscalate, n)
	}
	return d
}
