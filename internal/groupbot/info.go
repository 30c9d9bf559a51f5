package groupbot

import (
	"context"
	"fmt"
	"time"

	"github.com/masquebot/masquebot/internal/engine"
)

// info sends an ephemeral notice. A positive ttl schedules deletion;
// zero leaves the message for the caller to edit or delete.
func (b *Bot) info(ctx context.Context, chatID int64, text string, ttl time.Duration) int {
	mid, err := b.tr.SendText(ctx, chatID, text, 0)
	if err != nil {
		b.log.Warn("info message failed", "error", err)
		return 0
	}
	if ttl > 0 {
		b.deleteAfter(chatID, mid, ttl)
	}
	return mid
}

func (b *Bot) deleteAfter(chatID int64, mid int, ttl time.Duration) {
	time.AfterFunc(ttl, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		b.tr.Delete(ctx, chatID, mid)
	})
}

// await shows a progress notice, waits for the operation and replaces
// the notice with the outcome. doneFmt receives (delivered, total).
func (b *Bot) await(ctx context.Context, chatID int64, op *engine.Operation, progress, timeoutText, doneFmt string) {
	mid := b.info(ctx, chatID, progress, 0)
	if err := engine.Wait(ctx, op, b.opts.OpTimeout); err != nil {
		if mid != 0 {
			b.tr.EditText(ctx, chatID, mid, timeoutText)
		}
	} else if mid != 0 {
		b.tr.EditText(ctx, chatID, mid, fmt.Sprintf(doneFmt, op.Requests-op.Errors, op.Requests))
	}
	if mid != 0 {
		b.deleteAfter(chatID, mid, 2*time.Second)
	}
}
