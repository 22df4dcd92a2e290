package bot

import (
	"fmt"
	"regexp"
	"strconv"

	"remindly/internal/store"
	"remindly/internal/transport"
	"remindly/pkg/tgui"
)

// User-facing texts. Everything the bot says is Russian; strings marked
// HTML are sent with ParseMode=HTML and must keep their tags balanced.
const (
	msgStart = "Приветствую тебя! Напиши /help, чтобы увидеть мои команды."

	msgEnterText = "✨ Введи текст напоминания:"
	msgWhenOnce  = "🕒 Когда напомнить?\n" +
		"Примеры: <b>14:30</b> · <b>завтра 10:00</b> · <b>через 25 минут</b> · <b>+15</b>"

	msgEnterTextRepeat = "✨ Введи текст <b>повторяющегося</b> напоминания:"
	msgWhenRepeat      = "🕒 Какое расписание?\n" +
		"• <b>каждую минуту</b>\n" +
		"• <b>каждые N минут</b>\n" +
		"• <b>ежедневно HH:MM</b>\n" +
		"• <b>HH:MM</b> (ежедневно)\n" +
		"• <b>cron: * * * * *</b> (любой CRON)"

	msgListEmpty = "📋 Пока нет напоминаний."

	msgCancelled = "Отменено."

	msgPongOK = "🏓 pong — база и планировщик в порядке"

	msgBadAction = "⚠️ Неизвестное действие."
	msgBadData   = "⚠️ Некорректные данные."

	msgGroupOnly = "Эта команда доступна только в групповых чатах."
	msgAdminOnly = "Только администраторы чата могут это делать."

	msgTourneyOn = "✅ Турнирные напоминания включены.\n" +
		"Напоминания приходят за 5 минут до стартов: 14:00, 16:00, 18:00, 20:00, 22:00, 00:00 (МСК)."
	msgTourneyOff     = "⏸️ Турнирные напоминания выключены в этом чате."
	msgTourneySending = "🚀 Отправляю пробное напоминание турнира прямо сейчас…"

	msgScheduleHeader = "📅 Ближайшие старты турниров (МСК):"

	msgCardGone    = "🗑 Напоминание удалено."
	msgNotFound    = "Напоминание не найдено (возможно, уже удалено)."
	msgOnceOnly    = "Это действие доступно только для разовых напоминаний."
	msgNoNextAt    = "Не удалось определить время напоминания."
	msgPaused      = "⏸️ Поставлено на паузу"
	msgResumed     = "▶️ Возобновлено"
	msgDeleted     = "Удалено."
	msgShifted15   = "Перенесено на +15 минут."
	msgShiftedDay  = "Перенесено на завтра."
	msgEditPrompt  = "✏️ Введи новый текст для напоминания (или /cancel):"
	msgTextUpdated = "✅ Текст обновлен."

	msgQuietUsage = "Формат: /quiet HH-HH  или /quiet off"
	msgQuietOff   = "Тихие часы отключены."

	msgRolesHeader    = "Роли чата:"
	msgRolesEmpty     = "В этом чате нет дополнительных ролей."
	msgRoleBadTarget  = "Пока поддерживаю формат: /role grant <user_id> editor"
	msgRoleUsage      = "Форматы:\n/role list\n/role grant <user_id> editor\n/role revoke <user_id>"
	msgNoEditorRights = "Недостаточно прав для создания повторяющихся напоминаний."

	msgSetTZUsage  = "Укажи таймзону, например: /set_tz Europe/Moscow"
	msgBadOnceTime = "⚠️ Неверный формат. Примеры: 14:30 • завтра 10:00 • через 25 минут • +15"

	msgCreateCronFail = "❌ Не удалось создать повторяющееся. " +
		"Проверь формат (можно <code>cron: EXPR</code>)."
)

const helpText = "✨ Привет! Я бот-напоминалка для турниров и любых событий.\n\n" +
	"🏆 Турниры:\n" +
	"• /subscribe_tournaments — включить турнирные напоминания в этом чате\n" +
	"• /unsubscribe_tournaments — выключить турнирные напоминания\n" +
	"• /schedule — ближайшие старты и время напоминаний\n" +
	"\n" +
	"⏰ Универсальные напоминания:\n" +
	"• /add — мастер создания одноразового напоминания\n" +
	"  Примеры времени: 14:30 • завтра 10:00 • через 25 минут • +15\n" +
	"• /add_repeat — мастер создания повторяющегося (каждые N минут / ежедневно / cron)\n" +
	"• /list — список с кнопками (пауза/удалить)\n" +
	"• /delete /pause /resume <id> — управление по идентификатору\n" +
	"• /set_tz — часовой пояс чата (например, Europe/Moscow)\n" +
	"• /quiet 23-8 — тихие часы (доставка откладывается; /quiet off)\n" +
	"• /role — роли чата: /role list, /role grant <user_id> editor\n" +
	"\n" +
	"ℹ️ Полезное:\n" +
	"• /ping — проверить состояние\n" +
	"• /help — эта справка\n"

func msgCreatedOnce(text, human string) string {
	return fmt.Sprintf("✅ Напоминание создано:\n<b>%s</b>\n🕒 %s",
		tgui.Esc(text), tgui.Esc(human))
}

func msgCreatedCron(text, expr, next string) string {
	return fmt.Sprintf("✅ Повторяющееся напоминание создано:\n<b>%s</b>\n🔁 CRON: <code>%s</code>\n🕒 Ближайшее: <b>%s</b>",
		tgui.Esc(text), tgui.Esc(expr), tgui.Esc(next))
}

func msgPongDBErr(err error) string {
	return fmt.Sprintf("🏓 pong — ❌ db error: <code>%s</code>", tgui.Esc(err.Error()))
}

func msgCreateFail(err error) string {
	return fmt.Sprintf("❌ Не удалось создать. Причина: <code>%s</code>", tgui.Esc(err.Error()))
}

func msgTZUpdated(tz string) string {
	return fmt.Sprintf("Таймзона обновлена: %s", tgui.Esc(tz))
}

func msgDeletedID(id string) string {
	return fmt.Sprintf("🗑 Удалил напоминание <code>%s</code>", tgui.Esc(id))
}

func msgPausedID(id string) string {
	return fmt.Sprintf("⏸️ Поставил на паузу <code>%s</code>", tgui.Esc(id))
}

func msgResumedID(id string) string {
	return fmt.Sprintf("▶️ Возобновил напоминание <code>%s</code>", tgui.Esc(id))
}

func msgUsage(cmd string) string {
	return fmt.Sprintf("Укажи id: /%s <id>", cmd)
}

func msgQuietSet(from, to int) string {
	return fmt.Sprintf("Тихие часы установлены: %d:00–%d:00", from, to)
}

func msgRoleGranted(role string, userID int64) string {
	return fmt.Sprintf("Выдал роль %s пользователю %d.", role, userID)
}

func msgRoleRevoked(userID int64) string {
	return fmt.Sprintf("Снял роли с пользователя %d.", userID)
}

func msgRoleLine(r store.ChatRole) string {
	return fmt.Sprintf("• user_id=%d → %s", r.UserID, r.Role)
}

var menuCommands = []transport.BotCommand{
	{Command: "help", Description: "Показать команды"},
	{Command: "add", Description: "Создать напоминание"},
	{Command: "add_repeat", Description: "Повторяющееся напоминание"},
	{Command: "list", Description: "Список напоминаний (с кнопками)"},
	{Command: "delete", Description: "Удалить напоминание"},
	{Command: "pause", Description: "Пауза напоминания"},
	{Command: "resume", Description: "Возобновить напоминание"},
	{Command: "set_tz", Description: "Установить таймзону"},
	{Command: "quiet", Description: "Тихие часы"},
	{Command: "role", Description: "Роли чата"},
	{Command: "subscribe_tournaments", Description: "Включить турнирные напоминания"},
	{Command: "unsubscribe_tournaments", Description: "Выключить турнирные напоминания"},
	{Command: "tourney_now", Description: "Пробное напоминание турнира"},
	{Command: "schedule", Description: "Ближайшие старты/время напоминаний"},
	{Command: "ping", Description: "Проверить состояние"},
	{Command: "cancel", Description: "Отменить ввод"},
}

// pluralizeMinuteAcc picks the accusative form used after "через":
// 1 минуту, 2..4 минуты, 5..20 минут, 21 минуту, 22 минуты and so on.
func pluralizeMinuteAcc(n int) string {
	if n < 0 {
		n = -n
	}
	if n100 := n % 100; n100 >= 11 && n100 <= 14 {
		return "минут"
	}
	switch n % 10 {
	case 1:
		return "минуту"
	case 2, 3, 4:
		return "минуты"
	default:
		return "минут"
	}
}

var (
	reEveryNCron = regexp.MustCompile(`^\*/(\d+) \* \* \* \*$`)
	reDailyCron  = regexp.MustCompile(`^\d{1,2} \d{1,2} \* \* \*$`)
)

// humanizeRepeatSuffix labels a recurring card: "*/N * * * *" becomes
// "Повтор через N минут", a plain daily expression "Повтор ежедневно",
// anything else "Повтор по расписанию".
func humanizeRepeatSuffix(cronExpr string) string {
	if m := reEveryNCron.FindStringSubmatch(cronExpr); m != nil {
		n, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("Повтор через %d %s", n, pluralizeMinuteAcc(n))
	}
	if reDailyCron.MatchString(cronExpr) {
		return "Повтор ежедневно"
	}
	return "Повтор по расписанию"
}
