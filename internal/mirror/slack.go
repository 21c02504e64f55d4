package mirror

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/switchboard/internal/relay"
)

// Slack rejects message text beyond this many characters.
const slackMaxText = 40000

const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackOpts holds parameters for creating a Slack mirror.
type SlackOpts struct {
	BotToken string // xoxb-... Slack bot token
	Channel  string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a Mirror posting to a Slack channel.
func NewSlack(opts SlackOpts) (*Mirror, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("mirror: slack: bot token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("mirror: slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	post := func(ctx context.Context, text string) error {
		return retrySlack(ctx, func() error {
			_, _, err := client.PostMessageContext(ctx, opts.Channel, slackapi.MsgOptionText(text, false))
			return err
		})
	}
	return newMirror("slack", post, formatSlack), nil
}

func formatSlack(msg relay.ChatMessage) string {
	var text string
	switch msg.Role {
	case relay.RoleUser, relay.RoleAgent:
		text = fmt.Sprintf("*%s*: %s", msg.Sender, msg.Text)
	case relay.RoleError:
		text = ":warning: " + msg.Text
	default:
		text = "_" + msg.Text + "_"
	}
	return truncate(text, slackMaxText)
}

// retrySlack calls fn and retries on Slack rate limits, honouring the
// server's Retry-After when present.
func retrySlack(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}
		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
