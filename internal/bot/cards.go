package bot

import (
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindly/internal/recurrence"
	"remindly/internal/store"
	"remindly/pkg/tgui"
)

// Callback data is "r:<action>:<reminder-id>". A UUID keeps the full
// string well under Telegram's 64-byte callback_data limit.
const callbackPrefix = "r"

const (
	actionPause   = "pause"
	actionResume  = "resume"
	actionEdit    = "edit"
	actionShift15 = "shift15"
	actionTomorrw = "tomorrow"
	actionDelete  = "del"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// cardText renders one reminder card. Times are shown in the chat's
// timezone; recurring cards get a repeat label under the schedule line.
func cardText(r store.Reminder, loc *time.Location) string {
	icon := "▶️"
	if r.Paused {
		icon = "⏸️"
	}
	when := "—"
	if r.NextAt != nil {
		when = r.NextAt.In(loc).Format("2006-01-02 15:04")
	}
	out := fmt.Sprintf("%s\nID: %s  |  %s  |  вид: %s\nКогда: %s",
		tgui.B(r.Text), tgui.Code(shortID(r.ID)), icon, r.Spec.Kind, tgui.Code(when))
	if r.Spec.Kind == recurrence.KindCron {
		out += "\n" + string(tgui.I(humanizeRepeatSuffix(r.Spec.Expr)))
	}
	return out
}

// cardKeyboard builds the inline actions for a reminder card. The shift
// buttons are rendered for every kind; non-once reminders get an alert
// when pressed (callback side enforces it).
func cardKeyboard(r store.Reminder) *tele.ReplyMarkup {
	toggle := tgui.Btn("⏸ Пауза", tgui.Data(callbackPrefix, actionPause, r.ID))
	if r.Paused {
		toggle = tgui.Btn("▶️ Возобновить", tgui.Data(callbackPrefix, actionResume, r.ID))
	}
	return tgui.NewInline().
		Row(toggle, tgui.Btn("✏️ Редактировать", tgui.Data(callbackPrefix, actionEdit, r.ID))).
		Row(
			tgui.Btn("🔄 +15 мин", tgui.Data(callbackPrefix, actionShift15, r.ID)),
			tgui.Btn("📅 Завтра (в это время)", tgui.Data(callbackPrefix, actionTomorrw, r.ID)),
		).
		Row(tgui.Btn("🗑 Удалить", tgui.Data(callbackPrefix, actionDelete, r.ID))).
		Markup()
}
