// Package transport abstracts the Telegram send surface so the fan-out
// engine and command handlers can be tested against a fake.
package transport

import (
	"context"
	"errors"
)

// ErrUserBlocked means the recipient blocked the bot (or deleted their
// account). The engine demotes such members to left.
var ErrUserBlocked = errors.New("user has blocked the bot")

// Transport is the outbound message surface. Message ids are
// chat-scoped ints as Telegram defines them; chat ids are the
// recipients' private-chat ids.
type Transport interface {
	// SendText sends a text message; replyTo of 0 means no reply.
	SendText(ctx context.Context, chatID int64, text string, replyTo int) (int, error)
	// CopyMedia re-sends a media message from the originator's chat
	// with the caption replaced. Telegram cannot rewrite text bodies
	// during a copy, hence the split from SendText.
	CopyMedia(ctx context.Context, toChatID, fromChatID int64, mid int, caption string, replyTo int) (int, error)
	EditText(ctx context.Context, chatID int64, mid int, text string) error
	EditCaption(ctx context.Context, chatID int64, mid int, caption string) error
	Delete(ctx context.Context, chatID int64, mid int) error
	Pin(ctx context.Context, chatID int64, mid int, silent bool) error
	Unpin(ctx context.Context, chatID int64, mid int) error
}
