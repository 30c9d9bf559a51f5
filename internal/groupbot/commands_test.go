package groupbot

import (
	"testing"

	"github.com/mymmrac/telego"

	"github.com/masquebot/masquebot/internal/store"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		cmd  string
		args string
		ok   bool
	}{
		{"/delete", "delete", "", true},
		{"/pm hello there", "pm", "hello there", true},
		{"/Ban  123", "ban", "123", true},
		{"/start@masque_test_bot", "start", "", true},
		{"/setmask@masque_test_bot now", "setmask", "now", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		msg := &telego.Message{Text: tt.text}
		cmd, args, ok := parseCommand(msg)
		if cmd != tt.cmd || args != tt.args || ok != tt.ok {
			t.Errorf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.text, cmd, args, ok, tt.cmd, tt.args, tt.ok)
		}
	}
}

func TestMessageBanTypes(t *testing.T) {
	tests := []struct {
		name string
		msg  *telego.Message
		want []store.BanType
	}{
		{
			name: "plain text",
			msg:  &telego.Message{Text: "hi"},
			want: []store.BanType{store.BanMessage},
		},
		{
			name: "photo",
			msg:  &telego.Message{Photo: []telego.PhotoSize{{}}},
			want: []store.BanType{store.BanMessage, store.BanMedia, store.BanPhoto},
		},
		{
			name: "voice",
			msg:  &telego.Message{Voice: &telego.Voice{}},
			want: []store.BanType{store.BanMessage, store.BanMedia, store.BanVoice},
		},
		{
			name: "sticker",
			msg:  &telego.Message{Sticker: &telego.Sticker{}},
			want: []store.BanType{store.BanMessage, store.BanSticker},
		},
		{
			name: "text with link",
			msg: &telego.Message{
				Text:     "see https://example.com",
				Entities: []telego.MessageEntity{{Type: telego.EntityTypeURL}},
			},
			want: []store.BanType{store.BanMessage, store.BanLink},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := messageBanTypes(tt.msg)
			if len(got) != len(tt.want) {
				t.Fatalf("types = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("types = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestValidateModeration(t *testing.T) {
	member := func(r store.Role) *store.Member { return &store.Member{ID: store.NewID(), Role: r} }

	tests := []struct {
		name    string
		actor   store.Role
		target  store.Role
		allowed bool
	}{
		{"member cannot moderate", store.RoleMember, store.RoleMember, false},
		{"ban admin over member", store.RoleAdminBan, store.RoleMember, true},
		{"ban admin over admin needs senior", store.RoleAdminBan, store.RoleAdmin, false},
		{"senior admin over admin", store.RoleAdminAdmin, store.RoleAdmin, true},
		{"senior admin over senior needs creator", store.RoleAdminAdmin, store.RoleAdminAdmin, false},
		{"creator over senior admin", store.RoleCreator, store.RoleAdminAdmin, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateModeration(member(tt.actor), member(tt.target))
			if (err == nil) != tt.allowed {
				t.Errorf("allowed = %v, want %v (err: %v)", err == nil, tt.allowed, err)
			}
			if err != nil {
				if _, ok := store.AsOperationError(err); !ok {
					t.Errorf("error is not user-visible: %v", err)
				}
			}
		})
	}
}

func TestTitleCase(t *testing.T) {
	if got := titleCase("ban admin"); got != "Ban Admin" {
		t.Errorf("titleCase = %q, want %q", got, "Ban Admin")
	}
	if got := titleCase("creator"); got != "Creator" {
		t.Errorf("titleCase = %q, want %q", got, "Creator")
	}
}
