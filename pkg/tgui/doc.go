// Package tgui holds small helpers for Telegram messages sent with
// ParseMode="HTML": escaping, tag builders and Telegram's length limits.
package tgui
