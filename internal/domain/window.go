package domain

import "time"

// TimeWindow — полуоткрытый интервал [From, To), за который собирается дайджест.
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewTimeWindow строит окно длительностью d, заканчивающееся в to.
func NewTimeWindow(to time.Time, d time.Duration) (TimeWindow, error) {
	if d <= 0 {
		return TimeWindow{}, ErrInvalidTimeSpec
	}
	to = to.UTC()
	return TimeWindow{From: to.Add(-d), To: to}, nil
}

// Contains проверяет принадлежность момента окну.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Duration возвращает длительность окна.
func (w TimeWindow) Duration() time.Duration {
	return w.To.Sub(w.From)
}

// Valid проверяет инвариант From < To.
func (w TimeWindow) Valid() bool {
	return w.From.Before(w.To)
}
