package fatherbot

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	"github.com/masquebot/masquebot/internal/store"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text string
		cmd  string
		args string
	}{
		{"/start", "start", ""},
		{"/start _usecode", "start", "_usecode"},
		{"/Group @mygroup", "group", "@mygroup"},
		{"/gencode@father_bot 7", "gencode", "7"},
		{"123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", "", "123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
	}
	for _, tt := range tests {
		cmd, args := splitCommand(tt.text)
		if cmd != tt.cmd || args != tt.args {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)", tt.text, cmd, args, tt.cmd, tt.args)
		}
	}
}

func TestTokenPattern(t *testing.T) {
	forwarded := "Use this token to access the HTTP API:\n123456789:AAE5c2VjcmV0LXRva2VuLWZvci10ZXN0aW5n\nKeep your token secure."
	if got := tokenRe.FindString(forwarded); got != "123456789:AAE5c2VjcmV0LXRva2VuLWZvci10ZXN0aW5n" {
		t.Errorf("token not extracted from forwarded message, got %q", got)
	}
	if tokenRe.FindString("hello world") != "" {
		t.Error("matched a token in plain text")
	}
}

type fakeCodeStore struct {
	codes map[string]*store.InviteCode
}

func (f *fakeCodeStore) Create(_ context.Context, c *store.InviteCode) error {
	f.codes[c.Code] = c
	return nil
}

func (f *fakeCodeStore) Get(_ context.Context, code string) (*store.InviteCode, error) {
	return f.codes[code], nil
}

func (f *fakeCodeStore) MarkUsed(_ context.Context, code string, userID uuid.UUID, at time.Time) error {
	c := f.codes[code]
	c.UsedByID = userID
	c.UsedAt = &at
	return nil
}

func (f *fakeCodeStore) UsedBy(_ context.Context, userID uuid.UUID) (bool, error) {
	for _, c := range f.codes {
		if c.UsedByID == userID {
			return true, nil
		}
	}
	return false, nil
}

type recordingTransport struct {
	sent []string
}

func (r *recordingTransport) SendText(_ context.Context, _ int64, text string, _ int) (int, error) {
	r.sent = append(r.sent, text)
	return len(r.sent), nil
}

func (r *recordingTransport) CopyMedia(context.Context, int64, int64, int, string, int) (int, error) {
	return 0, nil
}
func (r *recordingTransport) EditText(context.Context, int64, int, string) error    { return nil }
func (r *recordingTransport) EditCaption(context.Context, int64, int, string) error { return nil }
func (r *recordingTransport) Delete(context.Context, int64, int) error              { return nil }
func (r *recordingTransport) Pin(context.Context, int64, int, bool) error           { return nil }
func (r *recordingTransport) Unpin(context.Context, int64, int) error               { return nil }

func redeemFixture() (*Bot, *fakeCodeStore, *recordingTransport) {
	codes := &fakeCodeStore{codes: make(map[string]*store.InviteCode)}
	tr := &recordingTransport{}
	return &Bot{
		tr:     tr,
		stores: &store.Stores{Codes: codes},
		log:    slog.Default(),
	}, codes, tr
}

func startMessage(tgid int64) *telego.Message {
	return &telego.Message{
		From: &telego.User{ID: tgid},
		Chat: telego.Chat{ID: tgid, Type: telego.ChatTypePrivate},
	}
}

func TestRedeemCode(t *testing.T) {
	b, codes, tr := redeemFixture()
	codes.codes["abc"] = &store.InviteCode{ID: store.NewID(), Code: "abc", Days: 30}
	user := &store.User{ID: store.NewID(), TGID: 1}

	if err := b.redeemCode(context.Background(), startMessage(1), user, "abc"); err != nil {
		t.Fatal(err)
	}
	if codes.codes["abc"].UsedByID != user.ID {
		t.Error("code not marked used")
	}
	if len(tr.sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(tr.sent))
	}

	// Redeeming again is idempotent for the same user.
	if err := b.redeemCode(context.Background(), startMessage(1), user, "abc"); err != nil {
		t.Fatal(err)
	}

	// A different user is rejected.
	other := &store.User{ID: store.NewID(), TGID: 2}
	err := b.redeemCode(context.Background(), startMessage(2), other, "abc")
	if _, ok := store.AsOperationError(err); !ok {
		t.Fatalf("err = %v, want OperationError", err)
	}

	err = b.redeemCode(context.Background(), startMessage(2), other, "missing")
	if _, ok := store.AsOperationError(err); !ok {
		t.Fatalf("err = %v, want OperationError", err)
	}
}

func TestUseCodeDeepLinkPromptsForCode(t *testing.T) {
	b, codes, tr := redeemFixture()
	codes.codes["abc"] = &store.InviteCode{ID: store.NewID(), Code: "abc", Days: 30}
	user := &store.User{ID: store.NewID(), TGID: 1}

	// The deep link carries no code; it only opens the prompt.
	if err := b.cmdStart(context.Background(), startMessage(1), user, "_usecode"); err != nil {
		t.Fatal(err)
	}
	if len(tr.sent) != 1 || !strings.Contains(tr.sent[0], "invite code") {
		t.Fatalf("prompt = %v, want invite code prompt", tr.sent)
	}
	if codes.codes["abc"].Used() {
		t.Fatal("code redeemed before the user sent it")
	}

	answer := startMessage(1)
	answer.Text = " abc "
	handled, err := b.resumeCodeWizard(context.Background(), answer, user)
	if err != nil {
		t.Fatal(err)
	}
	if !handled {
		t.Fatal("wizard did not consume the code message")
	}
	if codes.codes["abc"].UsedByID != user.ID {
		t.Error("code not marked used")
	}

	// Without a pending prompt the message is not treated as a code.
	handled, err = b.resumeCodeWizard(context.Background(), answer, user)
	if err != nil || handled {
		t.Errorf("resume without prompt = (%v, %v), want (false, nil)", handled, err)
	}
}
