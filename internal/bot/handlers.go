package bot

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/dutybot/core/buildinfo"
	coretelegram "github.com/m3rciful/dutybot/core/telegram"
	"github.com/m3rciful/dutybot/core/telegram/callbacks"
	"github.com/m3rciful/dutybot/core/telegram/commands"
	tghelpers "github.com/m3rciful/dutybot/core/telegram/helpers"
	"github.com/m3rciful/dutybot/internal/workflow"
)

const helpText = `Shift reporting bot.

/start — begin a shift report
/cancel — abandon the current report
/help — this message

Pick the shift and report type from the menus; incident details and
shift summaries are typed as a single message.`

const unknownTextHint = "Use /start to file a shift report."

// buildRegistry wires the dialog commands and callback handlers.
func (a *App) buildRegistry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Begin a shift report",
		Aliases:     []string{"report"},
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancel,
		Description: "Abandon the current report",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.handleHelp,
		Description: "Show usage",
	})
	reg.RegisterCommand("/restart", commands.Command{
		Handler:     a.handleRestart,
		Description: "Wipe a chat's dialog state",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/version", commands.Command{
		Handler:     a.handleVersion,
		Description: "Show build info",
		Hidden:      true,
	})

	_ = reg.RegisterCallback(callbackOption, a.handleOption)
	_ = reg.RegisterCallback(callbackCancel, a.handleCancel)

	reg.SetTextFallback(func(c tele.Context) error {
		return tghelpers.SendText(c, unknownTextHint)
	})

	return reg
}

// eventFrom maps a Telegram update onto a dialog event. The message
// handle is filled only for the operator's own messages so the engine
// can tidy them up; prompt messages are owned by the prompt manager.
func eventFrom(c tele.Context, withMessage bool) workflow.Event {
	ev := workflow.Event{}
	if chat := c.Chat(); chat != nil {
		ev.ConversationID = chat.ID
	}
	ev.Actor = operatorName(c.Sender())
	if withMessage && c.Message() != nil && ev.ConversationID != 0 {
		ev.Message = workflow.MessageRef{
			ChatID:    ev.ConversationID,
			MessageID: c.Message().ID,
		}
	}
	return ev
}

// operatorName renders the sender as the report signature.
func operatorName(u *tele.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

func (a *App) handleStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return a.engine.Begin(ctx, eventFrom(c, true))
}

func (a *App) handleCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return a.engine.Cancel(ctx, eventFrom(c, false))
}

func (a *App) handleRestart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := a.engine.Restart(ctx, eventFrom(c, false)); err != nil {
		return err
	}
	if a.RestartHook != nil {
		return a.RestartHook(ctx)
	}
	return nil
}

func (a *App) handleHelp(c tele.Context) error {
	return tghelpers.SendText(c, helpText)
}

func (a *App) handleVersion(c tele.Context) error {
	text := fmt.Sprintf("dutybot %s (%s)", buildinfo.Version, buildinfo.Commit)
	if buildinfo.Date != "" {
		text += " built " + buildinfo.Date
	}
	return tghelpers.SendText(c, text)
}

func (a *App) handleOption(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	ev := eventFrom(c, false)
	ev.OptionID = callbacks.CallbackPayload(c)
	return a.engine.Select(ctx, ev)
}

// conversationBridge feeds plain text updates into the dialog engine.
type conversationBridge struct {
	engine *workflow.Engine
}

func (b *conversationBridge) Active(chatID int64) bool {
	return b.engine.Active(context.Background(), chatID)
}

func (b *conversationBridge) Handle(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	ev := eventFrom(c, true)
	ev.Text = c.Text()
	return b.engine.Input(ctx, ev)
}
