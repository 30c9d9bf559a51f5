package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
	"github.com/masquebot/masquebot/internal/transport"
)

type sentCall struct {
	kind    string
	chatID  int64
	mid     int
	text    string
	replyTo int
}

type fakeTransport struct {
	mu      sync.Mutex
	calls   []sentCall
	blocked map[int64]bool
	nextMID int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{blocked: make(map[int64]bool), nextMID: 1000}
}

func (f *fakeTransport) record(c sentCall) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked[c.chatID] {
		return 0, fmt.Errorf("%w: forbidden", transport.ErrUserBlocked)
	}
	f.nextMID++
	c.mid = f.nextMID
	f.calls = append(f.calls, c)
	return f.nextMID, nil
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string, replyTo int) (int, error) {
	return f.record(sentCall{kind: "text", chatID: chatID, text: text, replyTo: replyTo})
}

func (f *fakeTransport) CopyMedia(_ context.Context, toChatID, _ int64, _ int, caption string, replyTo int) (int, error) {
	return f.record(sentCall{kind: "copy", chatID: toChatID, text: caption, replyTo: replyTo})
}

func (f *fakeTransport) EditText(_ context.Context, chatID int64, mid int, text string) error {
	_, err := f.record(sentCall{kind: "edit", chatID: chatID, mid: mid, text: text})
	return err
}

func (f *fakeTransport) EditCaption(_ context.Context, chatID int64, mid int, caption string) error {
	_, err := f.record(sentCall{kind: "edit_caption", chatID: chatID, mid: mid, text: caption})
	return err
}

func (f *fakeTransport) Delete(_ context.Context, chatID int64, mid int) error {
	_, err := f.record(sentCall{kind: "delete", chatID: chatID, mid: mid})
	return err
}

func (f *fakeTransport) Pin(_ context.Context, chatID int64, mid int, _ bool) error {
	_, err := f.record(sentCall{kind: "pin", chatID: chatID, mid: mid})
	return err
}

func (f *fakeTransport) Unpin(_ context.Context, chatID int64, mid int) error {
	_, err := f.record(sentCall{kind: "unpin", chatID: chatID, mid: mid})
	return err
}

func (f *fakeTransport) callsTo(chatID int64) []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentCall
	for _, c := range f.calls {
		if c.chatID == chatID {
			out = append(out, c)
		}
	}
	return out
}

type fakeMembers struct {
	mu      sync.Mutex
	members []*store.Member
}

func (f *fakeMembers) UserMembers(_ context.Context, _ uuid.UUID) ([]*store.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Member
	for _, m := range f.members {
		if m.Role > store.RoleLeft && m.Role != store.RoleBanned {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMembers) SetRole(_ context.Context, id uuid.UUID, role store.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.ID == id {
			m.Role = role
		}
	}
	return nil
}

type redirectKey struct {
	messageID  uuid.UUID
	toMemberID uuid.UUID
}

type fakeMessages struct {
	mu        sync.Mutex
	redirects map[redirectKey]*store.RedirectedMessage
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{redirects: make(map[redirectKey]*store.RedirectedMessage)}
}

func (f *fakeMessages) SaveRedirect(_ context.Context, r *store.RedirectedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects[redirectKey{r.MessageID, r.ToMemberID}] = r
	return nil
}

func (f *fakeMessages) RedirectFor(_ context.Context, messageID, toMemberID uuid.UUID) (*store.RedirectedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redirects[redirectKey{messageID, toMemberID}], nil
}

type fakeBans struct {
	mu          sync.Mutex
	memberBans  map[uuid.UUID]bool
	groupBanned bool
}

func newFakeBans() *fakeBans {
	return &fakeBans{memberBans: make(map[uuid.UUID]bool)}
}

func (f *fakeBans) MemberBanned(_ context.Context, memberID uuid.UUID, t store.BanType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return t == store.BanReceive && f.memberBans[memberID], nil
}

func (f *fakeBans) GroupBanned(_ context.Context, _ uuid.UUID, t store.BanType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return t == store.BanReceive && f.groupBanned, nil
}

type fixture struct {
	group     *store.Group
	worker    *Worker
	transport *fakeTransport
	members   *fakeMembers
	messages  *fakeMessages
	bans      *fakeBans
}

func newFixture(roles ...store.Role) *fixture {
	group := &store.Group{ID: store.NewID(), Username: "testgroup"}
	members := &fakeMembers{}
	for i, role := range roles {
		id := store.NewID()
		members.members = append(members.members, &store.Member{
			ID:      id,
			GroupID: group.ID,
			Role:    role,
			User:    &store.User{ID: store.NewID(), TGID: int64(100 + i)},
		})
	}
	tr := newFakeTransport()
	msgs := newFakeMessages()
	bans := newFakeBans()
	return &fixture{
		group:     group,
		transport: tr,
		members:   members,
		messages:  msgs,
		bans:      bans,
		worker: &Worker{
			Group:     group,
			Queue:     NewQueue(),
			Transport: tr,
			Members:   members,
			Messages:  msgs,
			Bans:      bans,
			Status:    NewAggregator(),
			Global:    NewAggregator(),
			Log:       slog.Default(),
		},
	}
}

func (f *fixture) broadcast(author *store.Member, text string) *Operation {
	msg := &store.Message{
		ID:       store.NewID(),
		GroupID:  f.group.ID,
		MemberID: author.ID,
		Mask:     "🦊",
		MID:      55,
	}
	op := NewOperation(KindBroadcast, author, msg)
	op.Source = Source{ChatID: author.User.TGID, MID: 55, IsText: true, Text: text}
	return op
}

func TestBroadcastFansOutToEveryoneButAuthor(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember, store.RoleMember, store.RoleGuest)
	author := f.members.members[1]

	op := f.broadcast(author, "hello")
	f.worker.process(context.Background(), op)

	select {
	case <-op.Done():
	default:
		t.Fatal("operation not finished")
	}

	if got := f.transport.callsTo(author.User.TGID); len(got) != 0 {
		t.Errorf("author received %d deliveries, want 0", len(got))
	}
	for _, m := range []*store.Member{f.members.members[0], f.members.members[2], f.members.members[3]} {
		calls := f.transport.callsTo(m.User.TGID)
		if len(calls) != 1 {
			t.Fatalf("member %d got %d deliveries, want 1", m.User.TGID, len(calls))
		}
		if want := "🦊 | hello"; calls[0].text != want {
			t.Errorf("delivered text = %q, want %q", calls[0].text, want)
		}
		r, _ := f.messages.RedirectFor(context.Background(), op.Message.ID, m.ID)
		if r == nil {
			t.Errorf("no redirect saved for member %d", m.User.TGID)
		} else if r.MID != calls[0].mid {
			t.Errorf("redirect mid = %d, want %d", r.MID, calls[0].mid)
		}
	}
	if op.Requests != 3 || op.Errors != 0 {
		t.Errorf("requests/errors = %d/%d, want 3/0", op.Requests, op.Errors)
	}
}

func TestBroadcastSkipsReceiveBannedMember(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember, store.RoleMember)
	muted := f.members.members[2]
	f.bans.memberBans[muted.ID] = true

	op := f.broadcast(f.members.members[1], "psst")
	f.worker.process(context.Background(), op)

	if got := f.transport.callsTo(muted.User.TGID); len(got) != 0 {
		t.Errorf("receive-banned member got %d deliveries, want 0", len(got))
	}
	if op.Requests != 1 {
		t.Errorf("requests = %d, want 1", op.Requests)
	}
}

func TestPinReachesReceiveBannedMembers(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember, store.RoleMember)
	author := f.members.members[1]
	muted := f.members.members[2]
	f.bans.memberBans[muted.ID] = true

	// Seed a broadcast so redirects exist.
	bop := f.broadcast(author, "pin me")
	f.worker.process(context.Background(), bop)

	pin := NewOperation(KindPin, author, bop.Message)
	f.worker.process(context.Background(), pin)

	// The muted member had no redirect (skipped during broadcast), so
	// only the author and the creator see a pin; the point is that the
	// filter did not exclude the muted member up front.
	authorCalls := f.transport.callsTo(author.User.TGID)
	if len(authorCalls) != 1 || authorCalls[0].kind != "pin" {
		t.Fatalf("author calls = %+v, want one pin", authorCalls)
	}
	if authorCalls[0].mid != bop.Message.MID {
		t.Errorf("author pin mid = %d, want original %d", authorCalls[0].mid, bop.Message.MID)
	}
	if pin.Requests != 3 {
		t.Errorf("pin requests = %d, want 3", pin.Requests)
	}
}

func TestGroupReceiveBanShortCircuits(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember)
	f.bans.groupBanned = true

	op := f.broadcast(f.members.members[1], "nobody hears this")
	f.worker.process(context.Background(), op)

	select {
	case <-op.Done():
	default:
		t.Fatal("operation not finished")
	}
	if len(f.transport.calls) != 0 {
		t.Errorf("deliveries = %d, want 0", len(f.transport.calls))
	}
	if _, _, _, ops := f.worker.Status.Snapshot(); ops != 0 {
		t.Errorf("short-circuited operation was recorded in status")
	}
}

func TestBlockedRecipientIsDemotedToLeft(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember, store.RoleMember)
	author := f.members.members[1]
	blocked := f.members.members[2]
	f.transport.blocked[blocked.User.TGID] = true

	op := f.broadcast(author, "hello")
	f.worker.process(context.Background(), op)

	if blocked.Role != store.RoleLeft {
		t.Errorf("blocked member role = %v, want left", blocked.Role)
	}
	if op.Errors != 1 {
		t.Errorf("errors = %d, want 1", op.Errors)
	}
	if op.Requests != 2 {
		t.Errorf("requests = %d, want 2", op.Requests)
	}
}

func TestBlockedCreatorKeepsRole(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember)
	creator := f.members.members[0]
	f.transport.blocked[creator.User.TGID] = true

	op := f.broadcast(f.members.members[1], "hello")
	f.worker.process(context.Background(), op)

	if creator.Role != store.RoleCreator {
		t.Errorf("creator role = %v, want creator", creator.Role)
	}
}

func TestEditRewritesRedirectedCopies(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember, store.RoleMember)
	author := f.members.members[1]

	bop := f.broadcast(author, "first")
	f.worker.process(context.Background(), bop)

	edit := NewOperation(KindEdit, author, bop.Message)
	edit.Source = Source{ChatID: author.User.TGID, MID: 55, IsText: true, Text: "second"}
	f.worker.process(context.Background(), edit)

	for _, m := range []*store.Member{f.members.members[0], f.members.members[2]} {
		calls := f.transport.callsTo(m.User.TGID)
		if len(calls) != 2 {
			t.Fatalf("member %d calls = %d, want 2", m.User.TGID, len(calls))
		}
		if calls[1].kind != "edit" || !strings.HasSuffix(calls[1].text, "| second") {
			t.Errorf("edit call = %+v", calls[1])
		}
		if calls[1].mid != calls[0].mid {
			t.Errorf("edit targeted mid %d, want redirected mid %d", calls[1].mid, calls[0].mid)
		}
	}
}

func TestDeleteRemovesAuthorOriginalAndCopies(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember, store.RoleMember)
	author := f.members.members[1]

	bop := f.broadcast(author, "oops")
	f.worker.process(context.Background(), bop)

	del := NewOperation(KindDelete, author, bop.Message)
	f.worker.process(context.Background(), del)

	authorCalls := f.transport.callsTo(author.User.TGID)
	if len(authorCalls) != 1 || authorCalls[0].kind != "delete" || authorCalls[0].mid != bop.Message.MID {
		t.Errorf("author delete calls = %+v", authorCalls)
	}
	if del.Requests != 3 {
		t.Errorf("delete requests = %d, want 3", del.Requests)
	}
}

func TestReplyTargetsPerRecipientCopies(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember, store.RoleMember)
	first := f.members.members[1]
	second := f.members.members[2]

	bop := f.broadcast(first, "original")
	f.worker.process(context.Background(), bop)

	reply := f.broadcast(second, "a reply")
	reply.ReplyTo = bop.Message
	f.worker.process(context.Background(), reply)

	// The creator's reply must point at the creator's redirected copy
	// of the original.
	creator := f.members.members[0]
	calls := f.transport.callsTo(creator.User.TGID)
	if len(calls) != 2 {
		t.Fatalf("creator calls = %d, want 2", len(calls))
	}
	if calls[1].replyTo != calls[0].mid {
		t.Errorf("reply target = %d, want %d", calls[1].replyTo, calls[0].mid)
	}
	// The original author has no redirect of their own message, so
	// their copy of the reply is sent without a reply target.
	firstCalls := f.transport.callsTo(first.User.TGID)
	if last := firstCalls[len(firstCalls)-1]; last.replyTo != 0 {
		t.Errorf("author reply target = %d, want 0", last.replyTo)
	}
}

func TestMediaBroadcastCopiesWithCaption(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember)
	author := f.members.members[1]

	msg := &store.Message{ID: store.NewID(), GroupID: f.group.ID, MemberID: author.ID, Mask: "🐸", MID: 77}
	op := NewOperation(KindBroadcast, author, msg)
	op.Source = Source{ChatID: author.User.TGID, MID: 77, IsText: false, Text: ""}
	f.worker.process(context.Background(), op)

	calls := f.transport.callsTo(f.members.members[0].User.TGID)
	if len(calls) != 1 || calls[0].kind != "copy" {
		t.Fatalf("calls = %+v, want one copy", calls)
	}
	if want := "🐸 has sent a media."; calls[0].text != want {
		t.Errorf("caption = %q, want %q", calls[0].text, want)
	}
}

func TestRunDeliversPendingAfterClose(t *testing.T) {
	f := newFixture(store.RoleCreator, store.RoleMember, store.RoleMember)
	author := f.members.members[1]

	op := f.broadcast(author, "last words")
	f.worker.Queue.Put(op)
	f.worker.Queue.Close()

	// Run sees a closed queue with one pending operation; it must fan
	// the operation out before exiting.
	f.worker.Run(context.Background())

	select {
	case <-op.Done():
	default:
		t.Fatal("operation not finished")
	}
	if op.Requests != 2 || op.Errors != 0 {
		t.Errorf("requests/errors = %d/%d, want 2/0", op.Requests, op.Errors)
	}
	for _, m := range []*store.Member{f.members.members[0], f.members.members[2]} {
		if calls := f.transport.callsTo(m.User.TGID); len(calls) != 1 {
			t.Errorf("member %d got %d deliveries, want 1", m.User.TGID, len(calls))
		}
	}
}

func TestWaitTimesOut(t *testing.T) {
	op := NewOperation(KindBroadcast, &store.Member{}, &store.Message{})
	err := Wait(context.Background(), op, 10*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	op.finish()
	if err := Wait(context.Background(), op, time.Second); err != nil {
		t.Fatalf("err after finish = %v", err)
	}
}
