// Package telegram delivers notifications to a user's linked Telegram
// chat through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"taskping/internal/channel"
	logx "taskping/pkg/logx"
)

type Config struct {
	Token string
}

type Channel struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token: cfg.Token,
		// Send-only: the daemon never polls for updates.
		Poller: nil,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Channel{bot: b, log: log}, nil
}

func (c *Channel) Name() string { return "telegram" }

func (c *Channel) Deliver(ctx context.Context, rcpt channel.Recipient, subject, body string) error {
	if rcpt.ChatID == 0 {
		return fmt.Errorf("recipient %q has no linked telegram chat", rcpt.DisplayName)
	}

	text := subject + "\n\n" + body

	// telebot's Send has no context plumbing; bound it ourselves so a
	// stuck API call cannot wedge the dispatch sweep.
	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(&tele.Chat{ID: rcpt.ChatID}, text, &tele.SendOptions{
			DisableWebPagePreview: true,
		})
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send to chat %d: %w", rcpt.ChatID, err)
		}
	}

	c.log.Debug("telegram message sent", logx.Int64("chat_id", rcpt.ChatID))
	return nil
}
