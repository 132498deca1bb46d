package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
)

// SlackPoster is the part of *slack.Client the notifier uses.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier handles send_notification and escalate. A "channel" param
// overrides the configured channel, a "message" param the default text.
type SlackNotifier struct {
	Client            SlackPoster
	DefaultChannel    string
	EscalationChannel string
}

func (n *SlackNotifier) Handle(ctx context.Context, a routing.Action) (map[string]any, error) {
	channel := stringParam(a.Params, "channel")
	if channel == "" {
		channel = n.DefaultChannel
		if a.Type == routing.ActionEscalate && n.EscalationChannel != "" {
			channel = n.EscalationChannel
		}
	}
	if channel == "" {
		return nil, Permanent(errors.New("no slack channel configured"))
	}

	text := stringParam(a.Params, "message")
	if text == "" {
		text = defaultText(a)
	}

	ch, ts, err := n.Client.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		var rl *slack.RateLimitedError
		if errors.As(err, &rl) {
			return nil, err
		}
		var se slack.SlackErrorResponse
		if errors.As(err, &se) {
			return nil, Permanent(fmt.Errorf("slack: %w", err))
		}
		return nil, err
	}
	return map[string]any{"channel": ch, "ts": ts}, nil
}

func defaultText(a routing.Action) string {
	prefix := ""
	if a.Type == routing.ActionEscalate {
		prefix = ":rotating_light: "
	}
	from := a.Email.SenderName
	if from == "" {
		from = a.Email.SenderEmail
	}
	return fmt.Sprintf("%s[%s %d%%] %s from %s (rule %q)", prefix, a.Intent, a.Confidence, a.Email.Subject, from, a.RuleName)
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}
