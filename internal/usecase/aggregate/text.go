package aggregate

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const ellipsis = "..."

// stripTags возвращает текстовое содержимое HTML-фрагмента.
func stripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

// truncate обрезает строку до limit символов с многоточием, не разрывая слова.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max(limit-len(ellipsis), 0)])
	if idx := strings.LastIndex(cut, " "); idx >= 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + ellipsis
}

func clean(s string, limit int) string {
	return truncate(stripTags(s), limit)
}
