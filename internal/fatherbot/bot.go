// Package fatherbot implements the provisioning bot: the single
// well-known endpoint where users redeem invite codes, create new
// anonymous groups by handing over a @botfather token, and manage the
// groups they own.
package fatherbot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/masquebot/masquebot/internal/runner"
	"github.com/masquebot/masquebot/internal/store"
	"github.com/masquebot/masquebot/internal/transport"
)

// Options configures the father bot.
type Options struct {
	// Token is the father bot's own token (env-provided secret).
	Token string
	// AdminTGID may generate invite codes. Zero disables /gencode.
	AdminTGID int64
	// RequireCode gates group creation behind invite codes.
	RequireCode bool
	// MessagesPerSecond caps outbound sends.
	MessagesPerSecond float64
}

// Bot is the father bot instance.
type Bot struct {
	bot    *telego.Bot
	tr     transport.Transport
	stores *store.Stores
	runner *runner.Runner
	opts   Options
	log    *slog.Logger

	username string

	pendingTokens sync.Map // user tg id → struct{} (awaiting a bot token)
	pendingCodes  sync.Map // user tg id → struct{} (awaiting an invite code)

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

func New(stores *store.Stores, r *runner.Runner, log *slog.Logger, opts Options) (*Bot, error) {
	bot, err := telego.NewBot(opts.Token)
	if err != nil {
		return nil, fmt.Errorf("create father bot: %w", err)
	}
	return &Bot{
		bot:    bot,
		tr:     transport.NewTelegram(bot, opts.MessagesPerSecond),
		stores: stores,
		runner: r,
		opts:   opts,
		log:    log.With("bot", "father"),
	}, nil
}

// Start begins long polling.
func (b *Bot) Start(ctx context.Context) error {
	me, err := b.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("father bot getMe: %w", err)
	}
	b.username = me.Username

	pollCtx, cancel := context.WithCancel(ctx)
	b.pollCancel = cancel
	b.pollDone = make(chan struct{})

	updates, err := b.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("father bot long polling: %w", err)
	}

	go func() {
		defer close(b.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					b.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	b.log.Info("father bot started", "username", b.username)
	return nil
}

// Stop cancels polling and waits for the update loop to exit.
func (b *Bot) Stop(_ context.Context) error {
	if b.pollCancel != nil {
		b.pollCancel()
	}
	if b.pollDone != nil {
		select {
		case <-b.pollDone:
		case <-time.After(10 * time.Second):
			b.log.Warn("father bot polling goroutine did not exit within timeout")
		}
	}
	b.log.Info("father bot stopped")
	return nil
}
