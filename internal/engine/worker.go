package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
	"github.com/masquebot/masquebot/internal/transport"
)

// Members is the slice of store.MemberStore the worker needs: the
// fan-out snapshot plus role demotion for blocked recipients.
type Members interface {
	UserMembers(ctx context.Context, groupID uuid.UUID) ([]*store.Member, error)
	SetRole(ctx context.Context, id uuid.UUID, role store.Role) error
}

// Messages is the redirect map the worker reads and writes.
type Messages interface {
	SaveRedirect(ctx context.Context, r *store.RedirectedMessage) error
	RedirectFor(ctx context.Context, messageID, toMemberID uuid.UUID) (*store.RedirectedMessage, error)
}

// Bans answers the receive-ban checks applied during fan-out.
type Bans interface {
	MemberBanned(ctx context.Context, memberID uuid.UUID, t store.BanType) (bool, error)
	GroupBanned(ctx context.Context, groupID uuid.UUID, t store.BanType) (bool, error)
}

// Worker drains one group's queue. A group has exactly one worker, so
// operations are applied in submission order and no two fan-outs for
// the same group overlap.
type Worker struct {
	Group     *store.Group
	Queue     *Queue
	Transport transport.Transport
	Members   Members
	Messages  Messages
	Bans      Bans
	Status    *Aggregator
	Global    *Aggregator
	Log       *slog.Logger
}

// Run processes operations until the queue closes or ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		op, ok := w.Queue.Get(ctx)
		if !ok {
			return
		}
		w.process(ctx, op)
	}
}

func (w *Worker) process(ctx context.Context, op *Operation) {
	defer op.finish()
	defer func() {
		if r := recover(); r != nil {
			w.Log.Warn("worker panic", "group", w.Group.Username, "kind", op.Kind.String(), "panic", r)
		}
	}()

	// A group-wide receive ban freezes all delivery; the operation
	// completes without touching anyone.
	if banned, err := w.Bans.GroupBanned(ctx, w.Group.ID, store.BanReceive); err != nil {
		w.Log.Error("group ban check failed", "group", w.Group.Username, "error", err)
		return
	} else if banned {
		return
	}

	members, err := w.Members.UserMembers(ctx, w.Group.ID)
	if err != nil {
		w.Log.Error("member snapshot failed", "group", w.Group.Username, "error", err)
		return
	}

	for _, m := range members {
		if w.skip(ctx, op, m) {
			continue
		}
		err := w.deliver(ctx, op, m)
		op.Requests++
		if err != nil {
			op.Errors++
			if errors.Is(err, transport.ErrUserBlocked) && m.Role != store.RoleCreator {
				if derr := w.Members.SetRole(ctx, m.ID, store.RoleLeft); derr != nil {
					w.Log.Error("demote blocked member failed", "group", w.Group.Username, "member", m.ID, "error", derr)
				}
			} else if !errors.Is(err, transport.ErrUserBlocked) {
				w.Log.Warn("delivery failed", "group", w.Group.Username, "kind", op.Kind.String(), "member", m.ID, "error", err)
			}
		}
	}

	elapsed := time.Since(op.Created)
	w.Status.Record(elapsed, op.Requests, op.Errors)
	w.Global.Record(elapsed, op.Requests, op.Errors)
}

// skip applies the per-kind recipient filters. Broadcast and edit
// never go back to the originator; pin and unpin reach everyone who is
// not banned, receive-ban included.
func (w *Worker) skip(ctx context.Context, op *Operation, m *store.Member) bool {
	if m.IsBanned() {
		return true
	}
	switch op.Kind {
	case KindBroadcast, KindEdit:
		if m.ID == op.Member.ID {
			return true
		}
	case KindPin, KindUnpin:
		return false
	}
	banned, err := w.Bans.MemberBanned(ctx, m.ID, store.BanReceive)
	if err != nil {
		w.Log.Error("member ban check failed", "group", w.Group.Username, "member", m.ID, "error", err)
		return true
	}
	return banned
}

func (w *Worker) deliver(ctx context.Context, op *Operation, m *store.Member) error {
	switch op.Kind {
	case KindBroadcast:
		return w.broadcast(ctx, op, m)
	case KindEdit:
		return w.edit(ctx, op, m)
	case KindDelete:
		return w.delete(ctx, op, m)
	case KindPin:
		return w.pin(ctx, op, m)
	case KindUnpin:
		return w.unpin(ctx, op, m)
	default:
		return nil
	}
}

func (w *Worker) broadcast(ctx context.Context, op *Operation, m *store.Member) error {
	replyTo := 0
	if op.ReplyTo != nil {
		r, err := w.Messages.RedirectFor(ctx, op.ReplyTo.ID, m.ID)
		if err != nil {
			return err
		}
		if r != nil {
			replyTo = r.MID
		}
	}

	var (
		mid int
		err error
	)
	if op.Source.IsText {
		mid, err = w.Transport.SendText(ctx, m.User.TGID, op.content(), replyTo)
	} else {
		mid, err = w.Transport.CopyMedia(ctx, m.User.TGID, op.Source.ChatID, op.Source.MID, op.content(), replyTo)
	}
	if err != nil {
		return err
	}
	return w.Messages.SaveRedirect(ctx, &store.RedirectedMessage{
		ID:         store.NewID(),
		MessageID:  op.Message.ID,
		ToMemberID: m.ID,
		MID:        mid,
		Created:    time.Now(),
	})
}

func (w *Worker) edit(ctx context.Context, op *Operation, m *store.Member) error {
	r, err := w.Messages.RedirectFor(ctx, op.Message.ID, m.ID)
	if err != nil || r == nil {
		return err
	}
	if op.Source.IsText {
		return w.Transport.EditText(ctx, m.User.TGID, r.MID, op.content())
	}
	return w.Transport.EditCaption(ctx, m.User.TGID, r.MID, op.content())
}

func (w *Worker) delete(ctx context.Context, op *Operation, m *store.Member) error {
	// The author's copy is the original message, not a redirect.
	if m.ID == op.Message.MemberID {
		return w.Transport.Delete(ctx, m.User.TGID, op.Message.MID)
	}
	r, err := w.Messages.RedirectFor(ctx, op.Message.ID, m.ID)
	if err != nil || r == nil {
		return err
	}
	return w.Transport.Delete(ctx, m.User.TGID, r.MID)
}

func (w *Worker) pin(ctx context.Context, op *Operation, m *store.Member) error {
	if m.ID == op.Message.MemberID {
		return w.Transport.Pin(ctx, m.User.TGID, op.Message.MID, true)
	}
	r, err := w.Messages.RedirectFor(ctx, op.Message.ID, m.ID)
	if err != nil || r == nil {
		return err
	}
	return w.Transport.Pin(ctx, m.User.TGID, r.MID, true)
}

func (w *Worker) unpin(ctx context.Context, op *Operation, m *store.Member) error {
	if m.ID == op.Message.MemberID {
		return w.Transport.Unpin(ctx, m.User.TGID, op.Message.MID)
	}
	r, err := w.Messages.RedirectFor(ctx, op.Message.ID, m.ID)
	if err != nil || r == nil {
		return err
	}
	return w.Transport.Unpin(ctx, m.User.TGID, r.MID)
}
