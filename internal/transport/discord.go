package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"platewatch/internal/components/assert"
	"platewatch/internal/components/telemetry"

	"github.com/bwmarrin/discordgo"
)

const report_discord_send = "discord.send"

// ChannelSender is the part of a discord session used for delivery.
type ChannelSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts every message to a fixed list of channels through a bot.
type Discord struct {
	session  ChannelSender
	channels []string
	tel      telemetry.API
}

// NewDiscordBot creates a bot session from a bot token, channels may be a
// comma separated list like the DISCORD_CHANNEL_IDS variable.
func NewDiscordBot(token, channels string, tel telemetry.API) (Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return Discord{}, fmt.Errorf("create discord session: %w", err)
	}
	return NewDiscord(session, SplitChannels(channels), tel), nil
}

func NewDiscord(session ChannelSender, channels []string, tel telemetry.API) Discord {
	assert.NotNil(session)
	assert.NotNil(tel)
	return Discord{
		session:  session,
		channels: channels,
		tel:      telemetry.NewScopedAPI("transport", tel),
	}
}

func SplitChannels(raw string) []string {
	var out []string
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

func (d Discord) Send(ctx context.Context, msgs ...Message) error {
	var texts []string
	for _, m := range msgs {
		text := TextOf(m)
		if text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	content := strings.Join(texts, "\n\n")

	var errs []error
	for _, channel := range d.channels {
		_, err := d.session.ChannelMessageSend(channel, content, discordgo.WithContext(ctx))
		if err != nil {
			d.tel.ReportBroken(report_discord_send, err, channel)
			errs = append(errs, fmt.Errorf("discord channel %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}
