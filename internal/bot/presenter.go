package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/dutybot/core/telegram/keyboard"
	tgsender "github.com/m3rciful/dutybot/core/telegram/sender"
	"github.com/m3rciful/dutybot/internal/workflow"
)

// Callback keys for the dialog's inline buttons.
const (
	callbackOption = "wfopt"
	callbackCancel = "wfcancel"
)

const cancelButtonLabel = "❌ Cancel"

var errNotBound = errors.New("bot: telegram runtime not bound yet")

// telegramPresenter renders dialog prompts as Telegram messages. Send
// and Replace run synchronously because the prompt manager needs the
// resulting message handle; Remove goes through the async dispatcher.
// The bot handle is bound once the runtime is up.
type telegramPresenter struct {
	bot        atomic.Pointer[tele.Bot]
	dispatcher atomic.Pointer[tgsender.Dispatcher]
}

func newTelegramPresenter() *telegramPresenter {
	return &telegramPresenter{}
}

func (p *telegramPresenter) bind(b *tele.Bot, d *tgsender.Dispatcher) {
	p.bot.Store(b)
	p.dispatcher.Store(d)
}

func (p *telegramPresenter) Send(_ context.Context, chatID int64, text string, options []workflow.Option) (workflow.MessageRef, error) {
	b := p.bot.Load()
	if b == nil {
		return workflow.MessageRef{}, errNotBound
	}
	var msg *tele.Message
	var err error
	if markup := optionMarkup(options); markup != nil {
		msg, err = b.Send(tele.ChatID(chatID), text, markup)
	} else {
		msg, err = b.Send(tele.ChatID(chatID), text)
	}
	if err != nil {
		return workflow.MessageRef{}, err
	}
	return workflow.MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

func (p *telegramPresenter) Replace(_ context.Context, ref workflow.MessageRef, text string, options []workflow.Option) (workflow.MessageRef, error) {
	b := p.bot.Load()
	if b == nil {
		return workflow.MessageRef{}, errNotBound
	}
	var msg *tele.Message
	var err error
	if markup := optionMarkup(options); markup != nil {
		msg, err = b.Edit(storedMessage(ref), text, markup)
	} else {
		msg, err = b.Edit(storedMessage(ref), text)
	}
	if err != nil {
		return workflow.MessageRef{}, err
	}
	return workflow.MessageRef{ChatID: ref.ChatID, MessageID: msg.ID}, nil
}

func (p *telegramPresenter) Remove(ctx context.Context, ref workflow.MessageRef) error {
	b := p.bot.Load()
	if b == nil {
		return errNotBound
	}
	run := func() error {
		err := b.Delete(storedMessage(ref))
		if isMessageGone(err) {
			// Already deleted, nothing to retry.
			return nil
		}
		return err
	}
	if d := p.dispatcher.Load(); d != nil {
		if err := d.Enqueue(ctx, "prompt.remove", "deleteMessage", run); err == nil {
			return nil
		}
	}
	if err := run(); err != nil {
		if isMessageGone(err) {
			return workflow.ErrMessageNotFound
		}
		return err
	}
	return nil
}

func storedMessage(ref workflow.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}
}

func isMessageGone(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to delete not found") ||
		strings.Contains(msg, "message can't be deleted") ||
		strings.Contains(msg, "message to edit not found")
}

// optionMarkup lays out the step's options two per row with a cancel
// button on its own final row. Nil options means a plain message.
func optionMarkup(options []workflow.Option) *tele.ReplyMarkup {
	if len(options) == 0 {
		return nil
	}
	buttons := make([]keyboard.InlineBtn, 0, len(options))
	for _, opt := range options {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   opt.Label,
			Unique: callbackOption,
			Data:   opt.ID,
		})
	}
	var rows [][]keyboard.InlineBtn
	for i := 0; i < len(buttons); i += 2 {
		end := i + 2
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	rows = append(rows, []keyboard.InlineBtn{{
		Text:   cancelButtonLabel,
		Unique: callbackCancel,
		Data:   "cancel",
	}})
	return keyboard.InlineButtonsRows(rows...)
}

// channelDeliverer posts finalized reports to the fixed report channel
// through the async dispatcher.
type channelDeliverer struct {
	channelID  int64
	bot        atomic.Pointer[tele.Bot]
	dispatcher atomic.Pointer[tgsender.Dispatcher]
}

func newChannelDeliverer(channelID int64) *channelDeliverer {
	return &channelDeliverer{channelID: channelID}
}

func (d *channelDeliverer) bind(b *tele.Bot, disp *tgsender.Dispatcher) {
	d.bot.Store(b)
	d.dispatcher.Store(disp)
}

func (d *channelDeliverer) Deliver(ctx context.Context, text string) error {
	b := d.bot.Load()
	if b == nil {
		return errNotBound
	}
	run := func() error {
		_, err := b.Send(tele.ChatID(d.channelID), text)
		return err
	}
	if disp := d.dispatcher.Load(); disp != nil {
		if err := disp.Enqueue(ctx, "report.deliver", "sendMessage", run); err == nil {
			return nil
		}
	}
	return run()
}
