// Package runner supervises the per-group bots: one bot, queue and
// worker per enabled group, started at boot and on demand when the
// father bot provisions or re-enables a group.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/engine"
	"github.com/masquebot/masquebot/internal/groupbot"
	"github.com/masquebot/masquebot/internal/store"
)

type Runner struct {
	stores *store.Stores
	global *engine.Aggregator
	opts   groupbot.Options
	log    *slog.Logger

	mu   sync.Mutex
	bots map[uuid.UUID]*groupbot.Bot
}

func New(stores *store.Stores, log *slog.Logger, opts groupbot.Options) *Runner {
	return &Runner{
		stores: stores,
		global: engine.NewAggregator(),
		opts:   opts,
		log:    log,
		bots:   make(map[uuid.UUID]*groupbot.Bot),
	}
}

// Global is the process-wide delivery aggregator shared by all groups.
func (r *Runner) Global() *engine.Aggregator { return r.global }

// StartAll boots a bot for every enabled group. A group that fails to
// start is logged and skipped so one bad token cannot take the fabric
// down.
func (r *Runner) StartAll(ctx context.Context) error {
	groups, err := r.stores.Groups.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled groups: %w", err)
	}
	for _, g := range groups {
		if err := r.StartGroup(ctx, g); err != nil {
			r.log.Error("group bot failed to start", "group", g.Username, "error", err)
		}
	}
	r.log.Info("group bots started", "count", len(r.bots))
	return nil
}

// StartGroup spawns the bot for g. Starting an already-running group
// is a no-op.
func (r *Runner) StartGroup(ctx context.Context, g *store.Group) error {
	r.mu.Lock()
	if _, running := r.bots[g.ID]; running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	bot, err := groupbot.New(g, r.stores, r.global, r.log, r.opts)
	if err != nil {
		return err
	}
	if err := bot.Start(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.bots[g.ID] = bot
	r.mu.Unlock()
	return nil
}

// StopGroup stops one group's bot, draining its queue first.
func (r *Runner) StopGroup(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	bot, ok := r.bots[id]
	delete(r.bots, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return bot.Stop(ctx)
}

// StopAll stops every running group bot.
func (r *Runner) StopAll(ctx context.Context) {
	r.mu.Lock()
	bots := make([]*groupbot.Bot, 0, len(r.bots))
	for _, b := range r.bots {
		bots = append(bots, b)
	}
	r.bots = make(map[uuid.UUID]*groupbot.Bot)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, b := range bots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Stop(ctx)
		}()
	}
	wg.Wait()
}

// Running reports whether the group's bot is currently up.
func (r *Runner) Running(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bots[id]
	return ok
}
