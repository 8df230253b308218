package render

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	maxLabelRunes       = 15
	truncatedLabelRunes = 13
)

// Ordinal returns "1st", "2nd", "3rd" for the first three positions and
// "{n}th" for the rest (11th, 12th, 13th included).
func Ordinal(index int) string {
	switch index {
	case 0:
		return "1st"
	case 1:
		return "2nd"
	case 2:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", index+1)
	}
}

// TruncateLabel shortens labels longer than 15 characters to their first
// 13 characters followed by "..". Characters are Unicode code points.
func TruncateLabel(s string) string {
	r := []rune(s)
	if len(r) <= maxLabelRunes {
		return s
	}
	return string(r[:truncatedLabelRunes]) + ".."
}

// FormatCount renders n with thousands separators.
func FormatCount(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}
