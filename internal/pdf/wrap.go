package pdf

import (
	"strings"
	"unicode/utf8"
)

// WrapText splits text into lines no wider than maxWidth using greedy
// word fill. Each line keeps the trailing space of its last word. A word
// wider than maxWidth is broken across lines at rune boundaries. Newlines
// start a new paragraph.
func WrapText(c Canvas, text string, font Font, maxWidth float64) []string {
	var lines []string
	for _, paragraph := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := ""
		for _, word := range strings.Split(paragraph, " ") {
			candidate := line + word + " "
			if c.TextWidth(candidate, font) <= maxWidth {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			for word != "" && c.TextWidth(word+" ", font) > maxWidth {
				n := fitPrefix(c, word, font, maxWidth)
				lines = append(lines, word[:n])
				word = word[n:]
			}
			if word != "" {
				line = word + " "
			}
		}
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// fitPrefix returns the byte length of the longest prefix of word that fits
// in maxWidth, never less than one rune.
func fitPrefix(c Canvas, word string, font Font, maxWidth float64) int {
	end := 0
	for end < len(word) {
		_, size := utf8.DecodeRuneInString(word[end:])
		if end > 0 && c.TextWidth(word[:end+size], font) > maxWidth {
			break
		}
		end += size
	}
	return end
}
