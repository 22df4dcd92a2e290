// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (scope:action:payload)
//   - HTML-safe text formatting for ParseMode="HTML"
package tgui
