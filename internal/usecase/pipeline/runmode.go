package pipeline

import (
	"errors"
	"fmt"

	"forum-digest/internal/usecase/preview"
)

// ErrConflictingRunModes возвращается, если запрошено больше одного
// диагностического режима.
var ErrConflictingRunModes = errors.New("conflicting run modes")

// RunKind определяет, чем завершается запуск.
type RunKind int

const (
	RunDispatch RunKind = iota
	RunShowUsers
	RunShowContent
	RunShowRendered
)

func (k RunKind) String() string {
	switch k {
	case RunShowUsers:
		return "show-users"
	case RunShowContent:
		return "show-content"
	case RunShowRendered:
		return "show-rendered"
	default:
		return "dispatch"
	}
}

// RunMode хранит выбранный режим запуска. Format задан только для RunShowRendered.
type RunMode struct {
	Kind   RunKind
	Format preview.Format
}

// Flags содержит диагностические флаги командной строки.
type Flags struct {
	ShowUsers   bool
	ShowContent bool
	ShowText    bool
	ShowHTML    bool
}

// ResolveRunMode выбирает режим один раз до начала работы. Без флагов
// выбирается отправка.
func ResolveRunMode(f Flags) (RunMode, error) {
	var modes []RunMode
	if f.ShowUsers {
		modes = append(modes, RunMode{Kind: RunShowUsers})
	}
	if f.ShowContent {
		modes = append(modes, RunMode{Kind: RunShowContent})
	}
	if f.ShowText {
		modes = append(modes, RunMode{Kind: RunShowRendered, Format: preview.FormatText})
	}
	if f.ShowHTML {
		modes = append(modes, RunMode{Kind: RunShowRendered, Format: preview.FormatHTML})
	}
	switch len(modes) {
	case 0:
		return RunMode{Kind: RunDispatch}, nil
	case 1:
		return modes[0], nil
	default:
		return RunMode{}, fmt.Errorf("%w: %d diagnostic flags set", ErrConflictingRunModes, len(modes))
	}
}
