// Package tgui holds small Telegram UI helpers: inline keyboards, callback
// data, MarkdownV2 and HTML escaping.
package tgui
