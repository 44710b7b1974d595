package bot

import (
	"strings"
	"unicode/utf8"
)

const messageLimit = 4096

// SplitMessage разбивает текст на части в пределах лимита Telegram,
// стараясь резать по границам строк, чтобы форматирование не рвалось.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if utf8.RuneCountInString(trimmed) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	var current []rune

	flush := func() {
		if part := strings.Trim(string(current), "\n"); part != "" {
			parts = append(parts, part)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(trimmed, "\n") {
		runes := []rune(line)
		// Строка длиннее лимита режется жёстко.
		for len(runes) > messageLimit {
			flush()
			parts = append(parts, string(runes[:messageLimit]))
			runes = runes[messageLimit:]
		}
		if len(current) > 0 && len(current)+len(runes)+1 > messageLimit {
			flush()
		}
		if len(current) > 0 {
			current = append(current, '\n')
		}
		current = append(current, runes...)
	}
	flush()

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}
