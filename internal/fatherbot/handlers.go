package fatherbot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	"github.com/masquebot/masquebot/internal/store"
)

// Deep-link payloads carried in /start. The use-code payload is bare;
// the code itself is sent as the next message.
const (
	payloadUseCode = "_usecode"
	payloadGroup   = "_g_"
)

var tokenRe = regexp.MustCompile(`\d+:[A-Za-z0-9_-]{30,}`)

func (b *Bot) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.Chat.Type != telego.ChatTypePrivate {
		return
	}

	user, err := b.stores.Users.Ensure(ctx, msg.From.ID, displayName(msg.From))
	if err != nil {
		b.log.Error("ensure user failed", "error", err)
		return
	}

	cmd, args := splitCommand(msg.Text)
	switch cmd {
	case "start":
		err = b.cmdStart(ctx, msg, user, args)
	case "newgroup":
		err = b.cmdNewGroup(ctx, msg, user)
	case "mygroups":
		err = b.cmdMyGroups(ctx, msg, user)
	case "group":
		err = b.cmdGroupDetail(ctx, msg, user, args)
	case "disable":
		err = b.cmdSetEnabled(ctx, msg, user, args, false)
	case "enable":
		err = b.cmdSetEnabled(ctx, msg, user, args, true)
	case "gencode":
		err = b.cmdGenCode(ctx, msg, args)
	case "":
		var handled bool
		handled, err = b.resumeCodeWizard(ctx, msg, user)
		if !handled && err == nil {
			err = b.resumeTokenWizard(ctx, msg, user)
		}
	default:
		b.reply(ctx, msg, "⚠️ Unknown command, send /start for an overview.")
	}
	if err != nil {
		if oe, ok := store.AsOperationError(err); ok {
			b.reply(ctx, msg, "⚠️ Sorry, "+oe.Reason+".")
		} else {
			b.log.Error("father handler failed", "command", cmd, "error", err)
		}
	}
}

func (b *Bot) cmdStart(ctx context.Context, msg *telego.Message, user *store.User, payload string) error {
	switch {
	case payload == payloadUseCode:
		b.pendingCodes.Store(msg.From.ID, struct{}{})
		b.reply(ctx, msg, "🎟️ Send me the invite code you received.")
		return nil
	case strings.HasPrefix(payload, payloadGroup):
		return b.cmdGroupDetail(ctx, msg, user, strings.TrimPrefix(payload, payloadGroup))
	}

	b.reply(ctx, msg, fmt.Sprintf(
		"🌈 Welcome %s!\n\n"+
			"This bot allows you to create a completely anonymous group.\n\n"+
			"/newgroup - Create an anonymous group\n"+
			"/mygroups - List groups you created\n"+
			"/group [username] - Show a group's details",
		user.Name))
	return nil
}

// resumeCodeWizard consumes a plain message as the invite code asked
// for by the _usecode deep link.
func (b *Bot) resumeCodeWizard(ctx context.Context, msg *telego.Message, user *store.User) (bool, error) {
	if _, pending := b.pendingCodes.LoadAndDelete(msg.From.ID); !pending {
		return false, nil
	}
	return true, b.redeemCode(ctx, msg, user, strings.TrimSpace(msg.Text))
}

func (b *Bot) redeemCode(ctx context.Context, msg *telego.Message, user *store.User, code string) error {
	c, err := b.stores.Codes.Get(ctx, code)
	if err != nil {
		return err
	}
	if c == nil {
		return store.NewOperationError("this code does not exist")
	}
	if c.Used() {
		if c.UsedByID == user.ID {
			b.reply(ctx, msg, "✅ You have already redeemed this code, send /newgroup to create a group.")
			return nil
		}
		return store.NewOperationError("this code has already been used")
	}
	if err := b.stores.Codes.MarkUsed(ctx, code, user.ID, time.Now()); err != nil {
		return err
	}
	b.reply(ctx, msg, "🎉 Code redeemed! Send /newgroup to create your anonymous group.")
	return nil
}

func (b *Bot) cmdNewGroup(ctx context.Context, msg *telego.Message, user *store.User) error {
	if b.opts.RequireCode {
		entitled, err := b.stores.Codes.UsedBy(ctx, user.ID)
		if err != nil {
			return err
		}
		if !entitled {
			return store.NewOperationError("you need an invite code to create groups")
		}
	}
	b.pendingTokens.Store(msg.From.ID, struct{}{})
	b.reply(ctx, msg,
		"⬇️ Create a bot via @botfather, then send me its token.\n\n"+
			"The token looks like 123456789:AAAA...; you can simply forward the @botfather message.")
	return nil
}

// resumeTokenWizard consumes a plain message as the bot token asked
// for by /newgroup.
func (b *Bot) resumeTokenWizard(ctx context.Context, msg *telego.Message, user *store.User) error {
	if _, pending := b.pendingTokens.LoadAndDelete(msg.From.ID); !pending {
		return nil
	}

	token := tokenRe.FindString(msg.Text)
	if token == "" {
		return store.NewOperationError("that does not look like a bot token, send /newgroup to retry")
	}

	username, err := validateToken(ctx, token)
	if err != nil {
		b.log.Warn("token validation failed", "error", err)
		return store.NewOperationError("this token was rejected by Telegram, send /newgroup to retry")
	}
	if existing, err := b.stores.Groups.GetByUsername(ctx, username); err != nil {
		return err
	} else if existing != nil {
		return store.NewOperationError("a group already exists for this bot")
	}

	group := &store.Group{
		ID:        store.NewID(),
		Username:  username,
		Token:     token,
		CreatorID: user.ID,
	}
	if err := b.stores.Groups.Create(ctx, group); err != nil {
		return err
	}
	if err := b.runner.StartGroup(ctx, group); err != nil {
		b.log.Error("new group bot failed to start", "group", username, "error", err)
		return store.NewOperationError("the group was created but its bot could not start")
	}

	b.reply(ctx, msg, fmt.Sprintf(
		"🎉 Group created!\n\n"+
			"Your members can join by opening t.me/%s and pressing Start.\n"+
			"Open it yourself first to take the creator seat.", username))
	return nil
}

// validateToken checks the token against Telegram and returns the bot
// username it belongs to.
func validateToken(ctx context.Context, token string) (string, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return "", err
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		return "", err
	}
	return me.Username, nil
}

func (b *Bot) cmdMyGroups(ctx context.Context, msg *telego.Message, user *store.User) error {
	groups, err := b.stores.Groups.ListByCreator(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		b.reply(ctx, msg, "ℹ️ You have not created any group yet, send /newgroup to start.")
		return nil
	}

	var sb strings.Builder
	sb.WriteString("⚒️ Your groups:\n\n")
	for _, g := range groups {
		state := "▶️"
		if g.Disabled {
			state = "🛑"
		}
		fmt.Fprintf(&sb, "%s @%s — %d members, %d messages\n", state, g.Username, g.NMembers, g.NMessages)
	}
	sb.WriteString("\nSend /group [username] for details.")
	b.reply(ctx, msg, sb.String())
	return nil
}

// cmdGroupDetail accepts a group username or, via the _g_ deep link, a
// group id.
func (b *Bot) cmdGroupDetail(ctx context.Context, msg *telego.Message, user *store.User, ref string) error {
	group, err := b.lookupGroup(ctx, ref)
	if err != nil {
		return err
	}
	if group.CreatorID != user.ID {
		return store.NewOperationError("only the creator can view this group")
	}

	state := "enabled"
	if group.Disabled {
		state = "disabled"
	}
	b.reply(ctx, msg, fmt.Sprintf(
		"ℹ️ Group @%s\n\n"+
			"State: %s\n"+
			"Members: %d\n"+
			"Messages: %d\n"+
			"Created: %s\n\n"+
			"/disable %s - Stop the group bot\n"+
			"/enable %s - Start it again",
		group.Username, state, group.NMembers, group.NMessages,
		group.Created.Format("2006-01-02"), group.Username, group.Username))
	return nil
}

func (b *Bot) cmdSetEnabled(ctx context.Context, msg *telego.Message, user *store.User, ref string, enable bool) error {
	group, err := b.lookupGroup(ctx, ref)
	if err != nil {
		return err
	}
	if group.CreatorID != user.ID {
		return store.NewOperationError("only the creator can manage this group")
	}

	if err := b.stores.Groups.SetDisabled(ctx, group.ID, !enable); err != nil {
		return err
	}
	if enable {
		group.Disabled = false
		if err := b.runner.StartGroup(ctx, group); err != nil {
			return store.NewOperationError("the group is enabled but its bot could not start")
		}
		b.reply(ctx, msg, fmt.Sprintf("▶️ Group @%s enabled.", group.Username))
	} else {
		if err := b.runner.StopGroup(ctx, group.ID); err != nil {
			b.log.Warn("stop group bot failed", "group", group.Username, "error", err)
		}
		b.reply(ctx, msg, fmt.Sprintf("🛑 Group @%s disabled. Its data is kept and it can be enabled again.", group.Username))
	}
	return nil
}

func (b *Bot) cmdGenCode(ctx context.Context, msg *telego.Message, args string) error {
	if b.opts.AdminTGID == 0 || msg.From.ID != b.opts.AdminTGID {
		return store.NewOperationError("permission denied")
	}
	days := 30
	if args != "" {
		n, err := strconv.Atoi(strings.Fields(args)[0])
		if err != nil || n <= 0 {
			return store.NewOperationError(`use "/gencode [days]" with a positive number of days`)
		}
		days = n
	}

	code, err := randomCode()
	if err != nil {
		return err
	}
	if err := b.stores.Codes.Create(ctx, &store.InviteCode{
		ID:   store.NewID(),
		Code: code,
		Days: days,
	}); err != nil {
		return err
	}
	b.reply(ctx, msg, fmt.Sprintf(
		"🎟️ Invite code created (%d days): %s\n\n"+
			"Have the user open https://t.me/%s?start=%s and send the code.",
		days, code, b.username, payloadUseCode))
	return nil
}

func (b *Bot) lookupGroup(ctx context.Context, ref string) (*store.Group, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "@")
	if ref == "" {
		return nil, store.NewOperationError("group username missing")
	}
	if id, err := uuid.Parse(ref); err == nil {
		g, err := b.stores.Groups.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			return g, nil
		}
	}
	g, err := b.stores.Groups.GetByUsername(ctx, ref)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, store.NewOperationError("group not found")
	}
	return g, nil
}

func (b *Bot) reply(ctx context.Context, msg *telego.Message, text string) {
	if _, err := b.tr.SendText(ctx, msg.Chat.ID, text, 0); err != nil {
		b.log.Warn("father reply failed", "error", err)
	}
}

func randomCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func splitCommand(text string) (cmd, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", strings.TrimSpace(text)
	}
	rest := ""
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		rest = strings.TrimSpace(text[i+1:])
		text = text[:i]
	}
	cmd = strings.ToLower(strings.TrimPrefix(text, "/"))
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd, rest
}

func displayName(u *telego.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}
