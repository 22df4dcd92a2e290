// Package logx provides structured logging for remindly on top of zerolog.
//
// It supports a console sink, an optional append-only file sink, and an
// optional rate-limited Telegram sink for operational alerts. The root
// logger can be re-configured at runtime via Service.Apply().
package logx
