package dispatch

import (
	"math/rand"
	"strings"

	"remindly/pkg/tgui"
)

// TournamentTitle is the display name of the recurring quick tournament.
const TournamentTitle = "Быстрый турнир"

// tournamentVariants announce a tournament starting in five minutes.
// {title} and {time} are substituted; title/time are HTML-escaped.
var tournamentVariants = []string{
	"⏰ Через 5 минут стартует {title} — начало в {time}!",
	"🔥 {title} начинается в {time}. Осталось 5 минут!",
	"⚡ {title} через 5 минут ({time}). Поехали!",
	"🚀 Через 5 минут стартует {title}! Начало в {time}, не пропусти!",
	"⏳ Осталось 5 минут — {title} на старте! ({time})",
	"🕓 Напоминание: {title} начинается в {time}.",
}

// reminderVariants wrap ordinary reminder texts.
var reminderVariants = []string{
	"⏰ Напоминание: {title}",
	"✨ Пора: {title}",
	"ℹ️ Не забудь: {title}",
	"🎯 Самое время: {title}",
}

// TournamentPhrase renders a random tournament announcement for the given
// start time (test sends from the bot front-end).
func TournamentPhrase(startHHMM string) string {
	v := tournamentVariants[rand.Intn(len(tournamentVariants))]
	return formatPhrase(v, TournamentTitle, startHHMM)
}

// formatPhrase substitutes {title}/{time} with escaped values. The variant
// templates themselves are trusted HTML.
func formatPhrase(variant, title, timeStr string) string {
	out := strings.ReplaceAll(variant, "{title}", tgui.Esc(title).String())
	out = strings.ReplaceAll(out, "{time}", tgui.Esc(timeStr).String())
	return out
}
