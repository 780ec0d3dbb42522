package tgui

// Telegram limits, in characters after entity parsing.
const (
	MaxMessageLen = 4096
	MaxCaptionLen = 1024
)
