package tgui

import "strings"

var mdV2Escaper = strings.NewReplacer(
	`\`, `\\`,
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

var mdV2CodeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")

// EscMD escapes text for Telegram MarkdownV2 outside entities.
func EscMD(s string) string { return mdV2Escaper.Replace(s) }

// CodeMD renders an inline code span for MarkdownV2.
func CodeMD(s string) string { return "`" + mdV2CodeEscaper.Replace(s) + "`" }
