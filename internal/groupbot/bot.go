// Package groupbot runs one Telegram bot per anonymous group. Every
// chat with the bot is a private chat; the bot relays messages between
// them under masks so members never see each other's identity.
package groupbot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/masquebot/masquebot/internal/engine"
	"github.com/masquebot/masquebot/internal/mask"
	"github.com/masquebot/masquebot/internal/store"
	"github.com/masquebot/masquebot/internal/transport"
)

// Options tunes one group bot. Zero values fall back to defaults.
type Options struct {
	// OpTimeout bounds how long a command waits for its fan-out
	// operation before reporting a timeout. The operation itself keeps
	// running.
	OpTimeout time.Duration
	// MaskTTL is how long an unused mask holding stays reserved.
	MaskTTL time.Duration
	// Masks overrides the built-in emoji universe.
	Masks []string
	// MessagesPerSecond caps outbound transport calls for this bot.
	MessagesPerSecond float64
}

func (o Options) withDefaults() Options {
	if o.OpTimeout <= 0 {
		o.OpTimeout = 120 * time.Second
	}
	if o.MaskTTL <= 0 {
		o.MaskTTL = 24 * time.Hour
	}
	return o
}

// Bot is one group's bot: a long-polling update loop, the group's
// operation queue and its single fan-out worker.
type Bot struct {
	group  *store.Group
	stores *store.Stores
	bot    *telego.Bot
	tr     transport.Transport
	pool   *mask.Pool
	queue  *engine.Queue
	worker *engine.Worker
	status *engine.Aggregator
	opts   Options
	log    *slog.Logger

	conversations sync.Map // user tg id → *conversation
	handlers      sync.WaitGroup

	pollCancel context.CancelFunc
	pollDone   chan struct{}
	workerDone chan struct{}
}

// New builds the bot for group using its stored token. global is the
// process-wide status aggregator shared by all groups.
func New(group *store.Group, stores *store.Stores, global *engine.Aggregator, log *slog.Logger, opts Options) (*Bot, error) {
	opts = opts.withDefaults()

	bot, err := telego.NewBot(group.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot for group %s: %w", group.Username, err)
	}

	tr := transport.NewTelegram(bot, opts.MessagesPerSecond)
	queue := engine.NewQueue()
	status := engine.NewAggregator()
	pool := mask.NewPool(group.ID, opts.Masks, opts.MaskTTL, stores.Masks)

	return &Bot{
		group:  group,
		stores: stores,
		bot:    bot,
		tr:     tr,
		pool:   pool,
		queue:  queue,
		status: status,
		opts:   opts,
		log:    log.With("group", group.Username),
		worker: &engine.Worker{
			Group:     group,
			Queue:     queue,
			Transport: tr,
			Members:   stores.Members,
			Messages:  stores.Messages,
			Bans:      stores.Bans,
			Status:    status,
			Global:    global,
			Log:       log.With("group", group.Username),
		},
	}, nil
}

// Start restores the mask pool, launches the worker and begins long
// polling.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.pool.Load(ctx); err != nil {
		return err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	b.pollCancel = cancel
	b.pollDone = make(chan struct{})
	b.workerDone = make(chan struct{})

	updates, err := b.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "edited_message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling for %s: %w", b.group.Username, err)
	}

	go func() {
		defer close(b.workerDone)
		// The worker outlives poll cancellation so accepted operations
		// are still delivered on shutdown; it exits once Stop closes
		// the queue and the backlog is drained.
		b.worker.Run(context.WithoutCancel(pollCtx))
	}()

	go func() {
		defer close(b.pollDone)
		dispatchUpdates(pollCtx, updates, &b.handlers, b.handleUpdate)
	}()

	b.log.Info("group bot started")
	return nil
}

// dispatchUpdates runs each update in its own goroutine. Handlers
// block on their fan-out operation for up to OpTimeout, so running
// them inline would stall intake for the whole group; ordering of the
// fan-outs themselves is already serialized by the queue.
func dispatchUpdates(ctx context.Context, updates <-chan telego.Update, wg *sync.WaitGroup, handle func(context.Context, telego.Update)) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				handle(ctx, update)
			}()
		}
	}
}

// Stop closes the queue and lets the worker drain it before the
// polling context is cancelled, so accepted operations are still
// delivered. Polling and in-flight handlers are then shut down.
func (b *Bot) Stop(_ context.Context) error {
	b.queue.Close()
	b.waitFor(b.workerDone, "worker")

	if b.pollCancel != nil {
		b.pollCancel()
	}
	b.waitFor(b.pollDone, "poll loop")

	handlersDone := make(chan struct{})
	go func() {
		b.handlers.Wait()
		close(handlersDone)
	}()
	b.waitFor(handlersDone, "handlers")

	b.log.Info("group bot stopped")
	return nil
}

func (b *Bot) waitFor(done chan struct{}, what string) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		b.log.Warn("group bot did not stop within timeout", "waiting_on", what)
	}
}

// Status returns the group-local delivery aggregator.
func (b *Bot) Status() *engine.Aggregator { return b.status }
