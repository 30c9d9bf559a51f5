package groupbot

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	"github.com/rivo/uniseg"
)

// conversation is a pending /setmask prompt awaiting the user's next
// message.
type conversation struct {
	chatID    int64
	promptMID int
	timer     *time.Timer
}

func (b *Bot) startConversation(_ context.Context, userID, chatID int64, promptMID int) {
	if prev, loaded := b.conversations.LoadAndDelete(userID); loaded {
		prev.(*conversation).timer.Stop()
	}
	c := &conversation{chatID: chatID, promptMID: promptMID}
	c.timer = time.AfterFunc(b.opts.OpTimeout, func() {
		if _, loaded := b.conversations.LoadAndDelete(userID); !loaded {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		b.tr.Delete(ctx, chatID, promptMID)
		b.info(ctx, chatID, "⚠️ Timeout.", 2*time.Second)
	})
	b.conversations.Store(userID, c)
}

// resumeConversation consumes msg as the answer to a pending prompt.
// Returns false when no conversation is open for the sender.
func (b *Bot) resumeConversation(ctx context.Context, msg *telego.Message) bool {
	v, loaded := b.conversations.LoadAndDelete(msg.From.ID)
	if !loaded {
		return false
	}
	c := v.(*conversation)
	c.timer.Stop()
	b.tr.Delete(ctx, c.chatID, c.promptMID)
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)

	if msg.Text == "" || uniseg.GraphemeClusterCount(msg.Text) != 1 || !isEmojiMask(msg.Text) {
		b.info(ctx, msg.Chat.ID, "⚠️ Please send a single emoji, use /setmask to retry.", 5*time.Second)
		return true
	}

	member, err := b.member(ctx, msg.From)
	if err != nil {
		b.reportError(ctx, msg, err)
		return true
	}
	if err := b.stores.Members.SetPinnedMask(ctx, member.ID, msg.Text); err != nil {
		b.log.Error("set pinned mask failed", "error", err)
		return true
	}
	// The pooled holding is no longer needed once a mask is pinned.
	if err := b.pool.Release(ctx, member.ID); err != nil {
		b.log.Warn("release mask failed", "error", err)
	}
	b.info(ctx, msg.Chat.ID, fmt.Sprintf("🎭 Your mask has been pinned to: %s", msg.Text), 10*time.Second)
	return true
}

// isEmojiMask reports whether the single grapheme cluster starts in an
// emoji block. Letters and digits make unreadable masks and collide
// with message text, so they are rejected.
func isEmojiMask(cluster string) bool {
	r, _ := utf8.DecodeRuneInString(cluster)
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // emoticons, pictographs, flags
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2B00 && r <= 0x2BFF: // stars, geometric shapes
		return true
	case r >= 0x2190 && r <= 0x21FF: // arrows
		return true
	case r == 0x203C, r == 0x2049, r == 0x2122, r == 0x2139:
		return true
	}
	return false
}
