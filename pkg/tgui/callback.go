package tgui

import (
	"fmt"
	"strings"
)

// CallbackSep separates action and payload in callback data ("done::<id>").
const CallbackSep = "::"

// Data formats "action::payload" and enforces the Telegram size limit.
func Data(action, payload string) (string, error) {
	s := strings.TrimSpace(action) + CallbackSep + payload
	if len(s) > MaxCallbackDataLen {
		return "", fmt.Errorf("%w: %d bytes", ErrCallbackDataTooLong, len(s))
	}
	return s, nil
}

// ParseData splits callback data into action and payload.
func ParseData(data string) (action, payload string, ok bool) {
	action, payload, ok = strings.Cut(data, CallbackSep)
	if !ok || action == "" {
		return "", "", false
	}
	return action, payload, true
}
