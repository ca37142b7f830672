package domain

import (
	"fmt"
	"strings"
)

// Mode определяет вид дайджеста.
type Mode string

const (
	// ModeNarrow собирает дайджест по курсам.
	ModeNarrow Mode = "narrow"
	// ModeBroad собирает общий дайджест по всем курсам пользователя.
	ModeBroad Mode = "broad"
)

// Modes перечисляет режимы в порядке запуска планировщиком.
var Modes = []Mode{ModeNarrow, ModeBroad}

// ModeFromBroad переводит флаг командной строки в режим.
func ModeFromBroad(broad bool) Mode {
	if broad {
		return ModeBroad
	}
	return ModeNarrow
}

// ParseMode разбирает строковое представление режима.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeNarrow, "standard", "":
		return ModeNarrow, nil
	case ModeBroad:
		return ModeBroad, nil
	default:
		return "", fmt.Errorf("unknown digest mode %q", raw)
	}
}

// PreferenceKey возвращает ключ предпочтения подписки для режима.
func (m Mode) PreferenceKey() string {
	if m == ModeBroad {
		return BroadPreferenceKey
	}
	return NarrowPreferenceKey
}

// QueryFilter возвращает значение фильтра для запроса подписчиков.
func (m Mode) QueryFilter() string {
	if m == ModeBroad {
		return "broad"
	}
	return "standard"
}

// IsBroad сообщает, что выбран общий режим.
func (m Mode) IsBroad() bool { return m == ModeBroad }

func (m Mode) String() string {
	if m == "" {
		return string(ModeNarrow)
	}
	return string(m)
}
