package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"
)

// Telegram implements Transport over a telego bot. All sends pass a
// shared limiter so fan-out bursts stay under the Bot API's global
// rate ceiling.
type Telegram struct {
	bot     *telego.Bot
	limiter *rate.Limiter
}

// NewTelegram wraps bot with a limiter of messagesPerSecond.
func NewTelegram(bot *telego.Bot, messagesPerSecond float64) *Telegram {
	if messagesPerSecond <= 0 {
		messagesPerSecond = 25
	}
	return &Telegram{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(messagesPerSecond), int(messagesPerSecond)),
	}
}

func (t *Telegram) SendText(ctx context.Context, chatID int64, text string, replyTo int) (int, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	params := &telego.SendMessageParams{
		ChatID: tu.ID(chatID),
		Text:   text,
	}
	if replyTo != 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}
	msg, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, classify(err)
	}
	return msg.MessageID, nil
}

func (t *Telegram) CopyMedia(ctx context.Context, toChatID, fromChatID int64, mid int, caption string, replyTo int) (int, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	params := &telego.CopyMessageParams{
		ChatID:     tu.ID(toChatID),
		FromChatID: tu.ID(fromChatID),
		MessageID:  mid,
		Caption:    caption,
	}
	if replyTo != 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}
	res, err := t.bot.CopyMessage(ctx, params)
	if err != nil {
		return 0, classify(err)
	}
	return res.MessageID, nil
}

func (t *Telegram) EditText(ctx context.Context, chatID int64, mid int, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := t.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(chatID),
		MessageID: mid,
		Text:      text,
	})
	return classify(err)
}

func (t *Telegram) EditCaption(ctx context.Context, chatID int64, mid int, caption string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := t.bot.EditMessageCaption(ctx, &telego.EditMessageCaptionParams{
		ChatID:    tu.ID(chatID),
		MessageID: mid,
		Caption:   caption,
	})
	return classify(err)
}

func (t *Telegram) Delete(ctx context.Context, chatID int64, mid int) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return classify(t.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: mid,
	}))
}

func (t *Telegram) Pin(ctx context.Context, chatID int64, mid int, silent bool) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return classify(t.bot.PinChatMessage(ctx, &telego.PinChatMessageParams{
		ChatID:              tu.ID(chatID),
		MessageID:           mid,
		DisableNotification: silent,
	}))
}

func (t *Telegram) Unpin(ctx context.Context, chatID int64, mid int) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return classify(t.bot.UnpinChatMessage(ctx, &telego.UnpinChatMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: mid,
	}))
}

// classify maps Bot API 403s from blocked or deactivated recipients to
// ErrUserBlocked; everything else passes through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) && apiErr.ErrorCode == 403 {
		desc := strings.ToLower(apiErr.Description)
		if strings.Contains(desc, "blocked") || strings.Contains(desc, "deactivated") {
			return fmt.Errorf("%w: %s", ErrUserBlocked, apiErr.Description)
		}
	}
	return err
}
