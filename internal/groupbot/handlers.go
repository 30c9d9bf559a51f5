package groupbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/masquebot/masquebot/internal/engine"
	"github.com/masquebot/masquebot/internal/mask"
	"github.com/masquebot/masquebot/internal/store"
)

func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.EditedMessage != nil:
		b.handleEdited(ctx, update.EditedMessage)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.Chat.Type != telego.ChatTypePrivate {
		return
	}

	if cmd, args, ok := parseCommand(msg); ok {
		b.dispatchCommand(ctx, msg, cmd, args)
		return
	}

	if b.resumeConversation(ctx, msg) {
		return
	}

	b.broadcast(ctx, msg)
}

func (b *Bot) handleEdited(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.Chat.Type != telego.ChatTypePrivate {
		return
	}
	member, err := b.member(ctx, msg.From)
	if err != nil {
		return
	}
	original, err := b.stores.Messages.GetByMID(ctx, msg.MessageID, member.ID)
	if err != nil || original == nil {
		return
	}

	op := engine.NewOperation(engine.KindEdit, member, original)
	op.Source = sourceOf(msg)
	b.queue.Put(op)
}

// broadcast relays a plain message to every other member under the
// sender's mask.
func (b *Bot) broadcast(ctx context.Context, msg *telego.Message) {
	member, err := b.member(ctx, msg.From)
	if err != nil {
		b.reportError(ctx, msg, err)
		return
	}
	if err := member.Validate(store.RoleMember); err != nil {
		b.reportError(ctx, msg, err)
		return
	}
	if err := b.checkMessage(ctx, msg, member); err != nil {
		b.reportError(ctx, msg, err)
		return
	}

	maskStr, changed, err := b.pool.Get(ctx, member, false)
	if err != nil {
		if err == mask.ErrNotAvailable {
			b.reportError(ctx, msg, store.NewOperationError("no mask is currently available"))
		} else {
			b.log.Error("mask allocation failed", "error", err)
		}
		return
	}

	original := &store.Message{
		ID:       store.NewID(),
		GroupID:  b.group.ID,
		MemberID: member.ID,
		Mask:     maskStr,
		MID:      msg.MessageID,
		Created:  time.Now(),
	}
	if err := b.stores.Messages.Create(ctx, original); err != nil {
		b.log.Error("store message failed", "error", err)
		return
	}

	op := engine.NewOperation(engine.KindBroadcast, member, original)
	op.Source = sourceOf(msg)
	if msg.ReplyToMessage != nil {
		if target, err := b.replyTarget(ctx, member, msg.ReplyToMessage, false); err == nil {
			op.ReplyTo = target.msg
		}
	}
	b.queue.Put(op)

	now := time.Now()
	if err := b.stores.Members.Touch(ctx, member.ID, maskStr, now); err != nil {
		b.log.Warn("touch member failed", "error", err)
	}
	if err := b.stores.Groups.BumpMessages(ctx, b.group.ID, 1); err != nil {
		b.log.Warn("bump message counter failed", "error", err)
	}

	progress := "🔃 Message sending ..."
	if changed {
		progress = fmt.Sprintf("🔃 Message sending as %s ...", maskStr)
	}
	b.await(ctx, msg.Chat.ID, op, progress,
		"⚠️ Timeout to send this message.",
		"✅ Message sent (%d/%d).")
}

// checkMessage applies the typed send bans matching the message's
// content class.
func (b *Bot) checkMessage(ctx context.Context, msg *telego.Message, member *store.Member) error {
	for _, t := range messageBanTypes(msg) {
		if err := store.RequireNotBanned(ctx, b.stores.Bans, member, t, true); err != nil {
			return err
		}
	}
	return nil
}

func messageBanTypes(msg *telego.Message) []store.BanType {
	types := []store.BanType{store.BanMessage}
	switch {
	case len(msg.Photo) > 0:
		types = append(types, store.BanMedia, store.BanPhoto)
	case msg.Video != nil:
		types = append(types, store.BanMedia, store.BanVideo)
	case msg.Document != nil:
		types = append(types, store.BanMedia, store.BanDocument)
	case msg.Voice != nil:
		types = append(types, store.BanMedia, store.BanVoice)
	case msg.Animation != nil:
		types = append(types, store.BanMedia)
	case msg.Sticker != nil:
		types = append(types, store.BanSticker)
	}
	if hasLink(msg) {
		types = append(types, store.BanLink)
	}
	return types
}

func hasLink(msg *telego.Message) bool {
	for _, entities := range [][]telego.MessageEntity{msg.Entities, msg.CaptionEntities} {
		for _, e := range entities {
			if e.Type == telego.EntityTypeURL || e.Type == telego.EntityTypeTextLink {
				return true
			}
		}
	}
	return false
}

// member resolves the sender to their membership row. The user row is
// upserted so display-name changes are picked up.
func (b *Bot) member(ctx context.Context, from *telego.User) (*store.Member, error) {
	u, err := b.stores.Users.Ensure(ctx, from.ID, displayName(from))
	if err != nil {
		return nil, err
	}
	m, err := b.stores.Members.Get(ctx, b.group.ID, u.ID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, store.NewOperationError("you have not joined this group, send /start first")
	}
	return m, nil
}

func displayName(u *telego.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

func sourceOf(msg *telego.Message) engine.Source {
	return engine.Source{
		ChatID: msg.Chat.ID,
		MID:    msg.MessageID,
		IsText: msg.Text != "",
		Text:   textOf(msg),
	}
}

func textOf(msg *telego.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func parseCommand(msg *telego.Message) (cmd, args string, ok bool) {
	text := textOf(msg)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	rest := ""
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		rest = strings.TrimSpace(text[i+1:])
		text = text[:i]
	}
	cmd = strings.TrimPrefix(text, "/")
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), rest, cmd != ""
}

// reportError shows a user-facing reason as an ephemeral notice and
// removes the offending message; internal errors are only logged.
func (b *Bot) reportError(ctx context.Context, msg *telego.Message, err error) {
	if oe, ok := store.AsOperationError(err); ok {
		b.info(ctx, msg.Chat.ID,
			fmt.Sprintf("⚠️ Sorry, %s, and this message will be deleted soon.", oe.Reason),
			30*time.Second)
		b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
		return
	}
	b.log.Error("handler failed", "error", err)
}
