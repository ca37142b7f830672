package telegram

import "strings"

const messageLimit = 4096

// chunk режет текст на части не длиннее limit рун, по возможности по
// границе строки.
func chunk(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		cut := min(limit, len(runes))
		if cut < len(runes) {
			if nl := lastNewline(runes[:cut]); nl > 0 {
				cut = nl
			}
		}
		if part := strings.Trim(string(runes[:cut]), "\n"); part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	return parts
}

func lastNewline(runes []rune) int {
	for i := len(runes); i > 0; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return -1
}
