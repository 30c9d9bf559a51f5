package groupbot

import (
	"context"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	"github.com/masquebot/masquebot/internal/store"
)

// replyTarget is the resolved referent of a reply: either a group
// message or, when PM resolution is allowed, a private message.
type replyTarget struct {
	msg *store.Message
	pm  *store.PMMessage
}

// targetMemberID is the member behind the referent: the group message
// author or the PM sender.
func (t *replyTarget) targetMemberID() uuid.UUID {
	if t.pm != nil {
		return t.pm.FromMemberID
	}
	return t.msg.MemberID
}

// replyTarget maps the replied-to transport message back to its stored
// original. The chain is: the member's own original, then the member's
// redirected copy, then (if allowPM) a private message they received.
func (b *Bot) replyTarget(ctx context.Context, m *store.Member, reply *telego.Message, allowPM bool) (*replyTarget, error) {
	if reply == nil {
		return nil, store.NewOperationError("no message replied")
	}

	own, err := b.stores.Messages.GetByMID(ctx, reply.MessageID, m.ID)
	if err != nil {
		return nil, err
	}
	if own != nil {
		return &replyTarget{msg: own}, nil
	}

	redirect, err := b.stores.Messages.RedirectByMID(ctx, reply.MessageID, m.ID)
	if err != nil {
		return nil, err
	}
	if redirect != nil {
		original, err := b.stores.Messages.GetByID(ctx, redirect.MessageID)
		if err != nil {
			return nil, err
		}
		if original != nil {
			return &replyTarget{msg: original}, nil
		}
	}

	if allowPM {
		pm, err := b.stores.PMs.GetByRedirectedMID(ctx, reply.MessageID, m.ID)
		if err != nil {
			return nil, err
		}
		if pm != nil {
			return &replyTarget{pm: pm}, nil
		}
	}

	return nil, store.NewOperationError("this is not a anonymous message or is outdated")
}
