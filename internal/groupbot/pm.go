package groupbot

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"

	"github.com/masquebot/masquebot/internal/mask"
	"github.com/masquebot/masquebot/internal/store"
)

// pm sends content privately to the author of the replied message,
// still masked. The recipient sees the sender's mask with a PM marker
// and can answer with /pm on the received copy.
func (b *Bot) pm(ctx context.Context, msg *telego.Message, member *store.Member, content string) error {
	target, err := b.pmTarget(ctx, msg, member)
	if err != nil {
		if oe, ok := store.AsOperationError(err); ok {
			b.info(ctx, msg.Chat.ID,
				fmt.Sprintf("⚠️ Sorry, %s, and this message will be deleted soon.", oe.Reason),
				30*time.Second)
			b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
			return nil
		}
		return err
	}

	maskStr, changed, err := b.pool.Get(ctx, member, false)
	if err != nil {
		if err == mask.ErrNotAvailable {
			b.info(ctx, msg.Chat.ID, "⚠️ Sorry, no mask is currently available, and this message will be deleted soon.", 30*time.Second)
			b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
			return nil
		}
		return err
	}

	body := fmt.Sprintf("%s (👁️ PM) | %s", maskStr, content)

	progress := "🔃 PM message sending ..."
	if changed {
		progress = fmt.Sprintf("🔃 PM message sending as %s ...", maskStr)
	}
	noticeMID := b.info(ctx, msg.Chat.ID, progress, 0)

	var sentMID int
	if msg.Text != "" {
		sentMID, err = b.tr.SendText(ctx, target.User.TGID, body, 0)
	} else {
		sentMID, err = b.tr.CopyMedia(ctx, target.User.TGID, msg.Chat.ID, msg.MessageID, body, 0)
	}
	if err != nil {
		if noticeMID != 0 {
			b.tr.EditText(ctx, msg.Chat.ID, noticeMID, "⚠️ Fail to send, and this message will be deleted soon.")
			b.deleteAfter(msg.Chat.ID, noticeMID, 30*time.Second)
		}
		return nil
	}

	if err := b.stores.PMs.CreateMessage(ctx, &store.PMMessage{
		ID:            store.NewID(),
		FromMemberID:  member.ID,
		ToMemberID:    target.ID,
		MID:           msg.MessageID,
		RedirectedMID: sentMID,
		Created:       time.Now(),
	}); err != nil {
		b.log.Error("store pm message failed", "error", err)
	}
	if noticeMID != 0 {
		b.tr.EditText(ctx, msg.Chat.ID, noticeMID, "✅ PM message sent.")
		b.deleteAfter(msg.Chat.ID, noticeMID, 5*time.Second)
	}
	return nil
}

// pmTarget resolves the recipient and applies the PM gates.
func (b *Bot) pmTarget(ctx context.Context, msg *telego.Message, member *store.Member) (*store.Member, error) {
	rt, err := b.replyTarget(ctx, member, msg.ReplyToMessage, true)
	if err != nil {
		return nil, err
	}
	var targetID = rt.targetMemberID()
	target, err := b.stores.Members.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, store.NewOperationError("this user is not in this group anymore")
	}

	if err := store.RequireNotBanned(ctx, b.stores.Bans, member, store.BanPMUser, true); err != nil {
		return nil, err
	}
	if target.Role >= store.RoleAdmin {
		if err := store.RequireNotBanned(ctx, b.stores.Bans, member, store.BanPMAdmin, true); err != nil {
			return nil, err
		}
	}
	if target.Role <= store.RoleLeft {
		return nil, store.NewOperationError("this user is not in this group anymore")
	}
	if banned, err := b.stores.Bans.MemberBanned(ctx, target.ID, store.BanReceive); err != nil {
		return nil, err
	} else if banned {
		return nil, store.NewOperationError("this user is banned from receiving messages")
	}
	if banned, err := b.stores.PMs.IsBanned(ctx, member.ID, target.ID); err != nil {
		return nil, err
	} else if banned {
		return nil, store.NewOperationError("this user is not willing to receive private messages from you")
	}
	if err := b.checkMessage(ctx, msg, member); err != nil {
		return nil, err
	}
	return target, nil
}
