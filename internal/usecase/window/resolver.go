// Package window вычисляет окна времени, за которые собираются дайджесты.
package window

import (
	"fmt"
	"math"
	"strings"
	"time"

	"forum-digest/internal/domain"
)

// DefaultMinutes соответствует окну в сутки.
const DefaultMinutes = 1440

const minutesPerDay = 24 * 60

// maxMinutes ограничивает длительность окна диапазоном time.Duration.
const maxMinutes = math.MaxInt64 / int64(time.Minute)

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Resolver строит окно [from, to) для запуска.
type Resolver struct {
	now func() time.Time
}

// NewResolver создаёт резолвер. nil clock означает time.Now.
func NewResolver(clock func() time.Time) *Resolver {
	if clock == nil {
		clock = time.Now
	}
	return &Resolver{now: clock}
}

// Resolve возвращает окно, заканчивающееся в to (ISO-8601, UTC) или в
// ближайшую прошедшую полночь UTC, если to не задан.
func (r *Resolver) Resolve(to string, minutes int) (domain.TimeWindow, error) {
	if minutes <= 0 {
		return domain.TimeWindow{}, fmt.Errorf("%w: minutes must be positive, got %d", domain.ErrInvalidTimeSpec, minutes)
	}
	if int64(minutes) > maxMinutes {
		return domain.TimeWindow{}, fmt.Errorf("%w: minutes out of range, got %d", domain.ErrInvalidTimeSpec, minutes)
	}
	end := Midnight(r.now())
	if raw := strings.TrimSpace(to); raw != "" {
		parsed, err := ParseTimestamp(raw)
		if err != nil {
			return domain.TimeWindow{}, err
		}
		end = parsed
	}
	return domain.NewTimeWindow(end, time.Duration(minutes)*time.Minute)
}

// Midnight отбрасывает часы, минуты и секунды момента в UTC.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseTimestamp разбирает ISO-8601 момент. Без указания зоны считается UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	for _, layout := range layouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q", domain.ErrInvalidTimeSpec, raw)
}

// TimeSlice возвращает последний завершившийся отрезок длиной minutes,
// выровненный по полуночи UTC. minutes должен делить сутки нацело, чтобы
// отрезок не пересекал границу дня.
func TimeSlice(minutes int, now time.Time) (domain.TimeWindow, error) {
	if minutes <= 0 || minutes > minutesPerDay || minutesPerDay%minutes != 0 {
		return domain.TimeWindow{}, fmt.Errorf("%w: slice of %d minutes does not divide a day", domain.ErrInvalidTimeSpec, minutes)
	}
	midnight := Midnight(now)
	elapsed := int(now.UTC().Sub(midnight) / time.Minute)
	end := midnight.Add(time.Duration(elapsed/minutes*minutes) * time.Minute)
	return domain.NewTimeWindow(end, time.Duration(minutes)*time.Minute)
}
