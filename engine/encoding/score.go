package encoding

import (
	"strings"
	"unicode"
)

// scoreDecoded rates a decoded sample 0-100. The score rewards printable
// content and word structure and penalizes control and replacement
// characters; UTF-8 gets a small bonus because it is the overwhelmingly
// common case for text destined for indexing.
func scoreDecoded(text string, encodingName string) int {
	if text == "" {
		return 0
	}
	var printable, control, replacement, total int
	for _, r := range text {
		total++
		switch {
		case r == '�':
			replacement++
		case r == '\n' || r == '\r' || r == '\t':
			printable++
		case unicode.IsControl(r):
			control++
		case unicode.IsPrint(r):
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	score := 0
	printableRatio := float64(printable) / float64(total)
	score += int(printableRatio * 60)

	words := len(strings.Fields(text))
	switch {
	case words >= 20:
		score += 20
	case words >= 5:
		score += 12
	case words >= 1:
		score += 6
	}

	controlRatio := float64(control) / float64(total)
	replacementRatio := float64(replacement) / float64(total)
	score -= int(controlRatio * 100)
	score -= int(replacementRatio * 120)

	if encodingName == EncUTF8 {
		score += 10
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
