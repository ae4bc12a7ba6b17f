package alarmsink

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/slack-go/slack"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
)

// SlackSink posts ERROR-level transitions to one ops channel. Warning and
// info lines stay on the log sink only — Slack is for the alarms an
// operator needs to act on, not every status ripple.
type SlackSink struct {
	client  *slack.Client
	channel string
	log     logr.Logger
}

// NewSlackSink builds a SlackSink posting to channel with a bot token.
func NewSlackSink(token, channel string, log logr.Logger) *SlackSink {
	return &SlackSink{
		client:  slack.New(token),
		channel: channel,
		log:     log.WithName("alarmslack"),
	}
}

func (s *SlackSink) Notify(ctx context.Context, rec Record) error {
	if rec.Severity != SeverityError {
		return nil
	}
	text := fmt.Sprintf("*%s* `%s` — %s (%s)", rec.InstanceID, rec.Status, rec.Msg, formatTs(rec.Ts))
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return apperrors.NewIOError("slack post alarm", err)
	}
	return nil
}
