package groupbot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/masquebot/masquebot/internal/engine"
	"github.com/masquebot/masquebot/internal/mask"
	"github.com/masquebot/masquebot/internal/store"
)

func (b *Bot) dispatchCommand(ctx context.Context, msg *telego.Message, cmd, args string) {
	var err error
	switch cmd {
	case "start":
		err = b.cmdStart(ctx, msg)
	case "help":
		err = b.cmdHelp(ctx, msg)
	case "delete":
		err = b.cmdDelete(ctx, msg)
	case "change":
		err = b.cmdChange(ctx, msg)
	case "setmask":
		err = b.cmdSetmask(ctx, msg)
	case "ban":
		err = b.cmdBan(ctx, msg, args)
	case "unban":
		err = b.cmdUnban(ctx, msg, args)
	case "mute":
		err = b.cmdMute(ctx, msg, args)
	case "unmute":
		err = b.cmdUnmute(ctx, msg)
	case "pin":
		err = b.cmdPin(ctx, msg)
	case "unpin":
		err = b.cmdUnpin(ctx, msg)
	case "reveal":
		err = b.cmdReveal(ctx, msg)
	case "manage":
		err = b.cmdManage(ctx, msg)
	case "pm":
		err = b.cmdPM(ctx, msg, args)
	default:
		b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
		b.info(ctx, msg.Chat.ID, "⚠️ Unknown command, see /help.", 5*time.Second)
	}
	if err != nil {
		b.reportError(ctx, msg, err)
	}
}

func (b *Bot) cmdStart(ctx context.Context, msg *telego.Message) error {
	u, err := b.stores.Users.Ensure(ctx, msg.From.ID, displayName(msg.From))
	if err != nil {
		return err
	}
	m, err := b.stores.Members.Get(ctx, b.group.ID, u.ID)
	if err != nil {
		return err
	}
	switch {
	case m == nil:
		role := store.RoleMember
		if u.ID == b.group.CreatorID {
			role = store.RoleCreator
		}
		m = &store.Member{
			ID:           store.NewID(),
			GroupID:      b.group.ID,
			UserID:       u.ID,
			Role:         role,
			LastActivity: time.Now(),
			Created:      time.Now(),
		}
		if err := b.stores.Members.Create(ctx, m); err != nil {
			return err
		}
		if err := b.stores.Groups.BumpMembers(ctx, b.group.ID, 1); err != nil {
			b.log.Warn("bump member counter failed", "error", err)
		}
	case m.Role == store.RoleBanned:
		return store.NewOperationError("you are banned in this group")
	case m.Role == store.RoleLeft:
		if err := b.stores.Members.SetRole(ctx, m.ID, store.RoleMember); err != nil {
			return err
		}
	}

	welcome := b.group.Welcome
	if welcome == "" {
		welcome = fmt.Sprintf("🌈 Welcome to @%s!\n\nEverything you send here is relayed to all members under your mask. Nobody can see who you are.", b.group.Username)
	}
	if b.group.Rules != "" {
		welcome += "\n\n🧾 Rules:\n" + b.group.Rules
	}
	b.info(ctx, msg.Chat.ID, welcome, 0)
	return nil
}

func (b *Bot) cmdHelp(ctx context.Context, msg *telego.Message) error {
	b.info(ctx, msg.Chat.ID, strings.Join([]string{
		"ℹ️ Commands:",
		"",
		"/delete - Delete the replied message for everyone",
		"/change - Draw a new mask",
		"/setmask - Pin an emoji as your permanent mask",
		"/pm [text] - Reply privately to the sender of a message",
		"/ban - Ban a member (reply or user id)",
		"/unban - Unban a member (reply or user id)",
		"/mute [days] - Forbid a member from sending messages",
		"/unmute - Lift a mute",
		"/pin - Pin the replied message for everyone",
		"/unpin - Unpin the replied message for everyone",
		"/reveal - Show the profile behind a message",
		"/manage - Show profile and restrictions of a member",
	}, "\n"), 0)
	return nil
}

func (b *Bot) cmdDelete(ctx context.Context, msg *telego.Message) error {
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
	member, err := b.member(ctx, msg.From)
	if err != nil {
		return err
	}
	if err := member.Validate(store.RoleMember); err != nil {
		return err
	}
	rt, err := b.replyTarget(ctx, member, msg.ReplyToMessage, false)
	if err != nil {
		return err
	}
	if err := store.RequireNotBanned(ctx, b.stores.Bans, member, store.BanMessage, true); err != nil {
		return err
	}
	if rt.msg.MemberID != member.ID && member.Role < store.RoleAdminBan {
		b.info(ctx, msg.Chat.ID, "⚠️ Only messages sent by you can be deleted.", 5*time.Second)
		return nil
	}

	op := engine.NewOperation(engine.KindDelete, member, rt.msg)
	b.queue.Put(op)
	b.await(ctx, msg.Chat.ID, op,
		"🔃 Message revoking from all users...",
		"⚠️ Timeout to revoke this message.",
		"🗑️ Message deleted (%d/%d).")
	return nil
}

func (b *Bot) cmdChange(ctx context.Context, msg *telego.Message) error {
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
	member, err := b.member(ctx, msg.From)
	if err != nil {
		return err
	}
	if err := member.Validate(store.RoleMember); err != nil {
		return err
	}
	if member.PinnedMask != "" {
		b.info(ctx, msg.Chat.ID, "⚠️ Your mask is pinned, use /setmask to change it.", 5*time.Second)
		return nil
	}
	newMask, _, err := b.pool.Get(ctx, member, true)
	if err != nil {
		if err == mask.ErrNotAvailable {
			return store.NewOperationError("no mask is currently available")
		}
		return err
	}
	b.info(ctx, msg.Chat.ID, fmt.Sprintf("🌈 Your mask has been changed to: %s", newMask), 10*time.Second)
	return nil
}

func (b *Bot) cmdSetmask(ctx context.Context, msg *telego.Message) error {
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
	member, err := b.member(ctx, msg.From)
	if err != nil {
		return err
	}
	if err := member.Validate(store.RoleMember); err != nil {
		return err
	}
	promptMID := b.info(ctx, msg.Chat.ID, "⬇️ Please enter an emoji as your mask:", 0)
	b.startConversation(ctx, msg.From.ID, msg.Chat.ID, promptMID)
	return nil
}

// banTarget resolves the ban/unban target: an explicit user id
// argument, or the author of the replied message. When the reply is a
// private message, target is nil and pm carries it instead.
func (b *Bot) banTarget(ctx context.Context, msg *telego.Message, args string) (member, target *store.Member, pm *store.PMMessage, err error) {
	member, err = b.member(ctx, msg.From)
	if err != nil {
		return nil, nil, nil, err
	}
	if args != "" {
		tgid, perr := strconv.ParseInt(strings.Fields(args)[0], 10, 64)
		if perr != nil {
			return nil, nil, nil, store.NewOperationError("invalid user id")
		}
		target, err = b.stores.Members.GetByTGID(ctx, b.group.ID, tgid)
		if err != nil {
			return nil, nil, nil, err
		}
		if target == nil {
			return nil, nil, nil, store.NewOperationError("member not found in this group")
		}
		return member, target, nil, nil
	}

	rt, err := b.replyTarget(ctx, member, msg.ReplyToMessage, true)
	if err != nil {
		return nil, nil, nil, err
	}
	if rt.pm != nil {
		return member, nil, rt.pm, nil
	}
	target, err = b.stores.Members.GetByID(ctx, rt.msg.MemberID)
	if err != nil {
		return nil, nil, nil, err
	}
	if target == nil {
		return nil, nil, nil, store.NewOperationError("member not found in this group")
	}
	return member, target, nil, nil
}

// validateModeration enforces the escalation ladder: ban admins may
// act, admins and above require a senior admin, senior admins require
// the creator.
func validateModeration(member, target *store.Member) error {
	if err := member.Validate(store.RoleAdminBan); err != nil {
		return err
	}
	if target.Role >= store.RoleAdmin {
		if err := member.Validate(store.RoleAdminAdmin); err != nil {
			return err
		}
	}
	if target.Role >= store.RoleAdminAdmin {
		if err := member.Validate(store.RoleCreator); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) cmdBan(ctx context.Context, msg *telego.Message, args string) error {
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
	member, target, pm, err := b.banTarget(ctx, msg, args)
	if err != nil {
		return err
	}
	if pm != nil {
		// Replying /ban to a private message blocks that sender's PMs
		// without touching their membership.
		if err := b.stores.PMs.Ban(ctx, pm.FromMemberID, member.ID); err != nil {
			return err
		}
		b.info(ctx, msg.Chat.ID, "✅ This member will not send private messages to you any more.", 10*time.Second)
		return nil
	}

	if err := validateModeration(member, target); err != nil {
		return err
	}
	switch {
	case target.ID == member.ID:
		b.info(ctx, msg.Chat.ID, "⚠️ Can not ban yourself.", 5*time.Second)
	case target.Role >= member.Role:
		b.info(ctx, msg.Chat.ID, "⚠️ Permission denied.", 5*time.Second)
	case target.Role == store.RoleBanned:
		b.info(ctx, msg.Chat.ID, "⚠️ The user is already banned.", 5*time.Second)
	default:
		if err := b.stores.Members.SetRole(ctx, target.ID, store.RoleBanned); err != nil {
			return err
		}
		b.info(ctx, msg.Chat.ID, "🚫 Member banned.", 5*time.Second)
	}
	return nil
}

func (b *Bot) cmdUnban(ctx context.Context, msg *telego.Message, args string) error {
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
	member, target, pm, err := b.banTarget(ctx, msg, args)
	if err != nil {
		return err
	}
	if pm != nil {
		if err := b.stores.PMs.Unban(ctx, pm.FromMemberID, member.ID); err != nil {
			return err
		}
		b.info(ctx, msg.Chat.ID, "✅ This member is now able to send private messages.", 10*time.Second)
		return nil
	}

	if err := validateModeration(member, target); err != nil {
		return err
	}
	switch {
	case target.ID == member.ID:
		b.info(ctx, msg.Chat.ID, "⚠️ Can not unban yourself.", 5*time.Second)
	case target.Role >= member.Role:
		b.info(ctx, msg.Chat.ID, "⚠️ Permission denied.", 5*time.Second)
	case target.Role != store.RoleBanned:
		b.info(ctx, msg.Chat.ID, "⚠️ The user is not banned.", 5*time.Second)
	default:
		if err := b.stores.Members.SetRole(ctx, target.ID, store.RoleGuest); err != nil {
			return err
		}
		b.info(ctx, msg.Chat.ID, "✅ Member unbanned.", 5*time.Second)
	}
	return nil
}

func (b *Bot) cmdMute(ctx context.Context, msg *telego.Message, args string) error {
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
	member, target, pm, err := b.banTarget(ctx, msg, "")
	if err != nil {
		return err
	}
	if pm != nil {
		return store.NewOperationError("reply to a group message to mute its sender")
	}
	if err := validateModeration(member, target); err != nil {
		return err
	}
	if target.ID == member.ID || target.Role >= member.Role {
		b.info(ctx, msg.Chat.ID, "⚠️ Permission denied.", 5*time.Second)
		return nil
	}

	ban := &store.Ban{
		GroupID:  b.group.ID,
		MemberID: target.ID,
		Type:     store.BanMessage,
	}
	notice := "🔇 Member muted."
	if args != "" {
		days, perr := strconv.Atoi(strings.Fields(args)[0])
		if perr != nil || days <= 0 {
			return store.NewOperationError(`use "/mute [days]" with a positive number of days`)
		}
		expires := time.Now().AddDate(0, 0, days)
		ban.Expires = &expires
		notice = fmt.Sprintf("🔇 Member muted for %d days.", days)
	}
	if err := b.stores.Bans.Set(ctx, ban); err != nil {
		return err
	}
	b.info(ctx, msg.Chat.ID, notice, 5*time.Second)
	return nil
}

func (b *Bot) cmdUnmute(ctx context.Context, msg *telego.Message) error {
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
	member, target, pm, err := b.banTarget(ctx, msg, "")
	if err != nil {
		return err
	}
	if pm != nil {
		return store.NewOperationError("reply to a group message to unmute its sender")
	}
	if err := validateModeration(member, target); err != nil {
		return err
	}
	if err := b.stores.Bans.ClearMember(ctx, target.ID, store.BanMessage); err != nil {
		return err
	}
	b.info(ctx, msg.Chat.ID, "🔊 Member unmuted.", 5*time.Second)
	return nil
}

func (b *Bot) pinUnpin(ctx context.Context, msg *telego.Message, kind engine.Kind, progress, timeout, done string) error {
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
	member, err := b.member(ctx, msg.From)
	if err != nil {
		return err
	}
	if err := member.Validate(store.RoleAdminMsg); err != nil {
		return err
	}
	rt, err := b.replyTarget(ctx, member, msg.ReplyToMessage, false)
	if err != nil {
		return err
	}
	op := engine.NewOperation(kind, member, rt.msg)
	b.queue.Put(op)
	b.await(ctx, msg.Chat.ID, op, progress, timeout, done)
	return nil
}

func (b *Bot) cmdPin(ctx context.Context, msg *telego.Message) error {
	return b.pinUnpin(ctx, msg, engine.KindPin,
		"🔃 Pinning message for all users...",
		"⚠️ Timeout to pin this message.",
		"📌 Message pinned (%d/%d).")
}

func (b *Bot) cmdUnpin(ctx context.Context, msg *telego.Message) error {
	return b.pinUnpin(ctx, msg, engine.KindUnpin,
		"🔃 Unpinning message for all users...",
		"⚠️ Timeout to unpin this message.",
		"📌 Message unpinned (%d/%d).")
}

func (b *Bot) revealTarget(ctx context.Context, msg *telego.Message) (*store.Member, error) {
	member, err := b.member(ctx, msg.From)
	if err != nil {
		return nil, err
	}
	if err := member.Validate(store.RoleAdminBan); err != nil {
		return nil, err
	}
	rt, err := b.replyTarget(ctx, member, msg.ReplyToMessage, false)
	if err != nil {
		return nil, err
	}
	target, err := b.stores.Members.GetByID(ctx, rt.msg.MemberID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, store.NewOperationError("member not found in this group")
	}
	return target, nil
}

func (b *Bot) cmdReveal(ctx context.Context, msg *telego.Message) error {
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
	target, err := b.revealTarget(ctx, msg)
	if err != nil {
		return err
	}
	b.info(ctx, msg.Chat.ID, memberProfile(target), 15*time.Second)
	return nil
}

func (b *Bot) cmdManage(ctx context.Context, msg *telego.Message) error {
	b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
	target, err := b.revealTarget(ctx, msg)
	if err != nil {
		return err
	}
	bans, err := b.stores.Bans.ListMember(ctx, target.ID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(memberProfile(target))
	sb.WriteString("\n\n⚠️ Restrictions:\n")
	if len(bans) == 0 {
		sb.WriteString("None\n")
	}
	for _, ban := range bans {
		if ban.Expires != nil {
			fmt.Fprintf(&sb, "- %s (until %s)\n", ban.Type.String(), ban.Expires.Format("2006-01-02"))
		} else {
			fmt.Fprintf(&sb, "- %s\n", ban.Type.String())
		}
	}
	sb.WriteString("\nUse /ban, /mute or /unmute replying to this member's messages.")
	b.info(ctx, msg.Chat.ID, sb.String(), 30*time.Second)
	return nil
}

func memberProfile(target *store.Member) string {
	return fmt.Sprintf(
		"ℹ️ Profile of this member:\n\n"+
			"Name: %s\n"+
			"ID: %d\n"+
			"Role in group: %s\n"+
			"Joining date: %s\n"+
			"Message count: %d\n"+
			"Last Activity: %s\n"+
			"Last Mask: %s\n\n"+
			"👁️‍🗨️ This panel is only visible to you.",
		target.User.Name,
		target.User.TGID,
		titleCase(target.Role.String()),
		target.Created.Format("2006-01-02"),
		target.NMessages,
		target.LastActivity.Format("2006-01-02"),
		target.LastMask,
	)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (b *Bot) cmdPM(ctx context.Context, msg *telego.Message, args string) error {
	member, err := b.member(ctx, msg.From)
	if err != nil {
		return err
	}
	if err := member.Validate(store.RoleMember); err != nil {
		return err
	}
	if args == "" {
		b.tr.Delete(ctx, msg.Chat.ID, msg.MessageID)
		b.info(ctx, msg.Chat.ID, `⚠️ Use "/pm [text]" to send private messages.`, 10*time.Second)
		return nil
	}
	return b.pm(ctx, msg, member, args)
}
