package mirror

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/switchboard/internal/relay"
)

// Discord rejects message content beyond this many characters.
const discordMaxText = 2000

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks. Posting only needs the REST API, so no gateway connection is
// opened.
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordOpts holds parameters for creating a Discord mirror.
type DiscordOpts struct {
	BotToken string
	Channel  string
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// NewDiscord creates a Mirror posting to a Discord channel.
func NewDiscord(opts DiscordOpts) (*Mirror, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("mirror: discord: bot token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("mirror: discord: channel is required")
	}
	sess := opts.Session
	if sess == nil {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("mirror: discord: create session: %w", err)
		}
		sess = dg
	}
	post := func(ctx context.Context, text string) error {
		return retryDiscord(ctx, time.Second, func() error {
			_, err := sess.ChannelMessageSend(opts.Channel, text, discordgo.WithContext(ctx))
			return err
		})
	}
	return newMirror("discord", post, formatDiscord), nil
}

func formatDiscord(msg relay.ChatMessage) string {
	var text string
	switch msg.Role {
	case relay.RoleUser, relay.RoleAgent:
		text = fmt.Sprintf("**%s**: %s", msg.Sender, msg.Text)
	case relay.RoleError:
		text = ":warning: " + msg.Text
	default:
		text = "*" + msg.Text + "*"
	}
	return truncate(text, discordMaxText)
}

// retryDiscord calls fn and retries with exponential backoff on Discord
// rate limit errors.
func retryDiscord(ctx context.Context, base time.Duration, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * base
		log.Printf("mirror: discord: rate limited (attempt %d/%d), retrying in %v", attempt+1, maxRetries, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
