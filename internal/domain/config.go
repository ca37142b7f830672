package domain

import "fmt"

// PipelineConfig содержит настройки конвейера дайджестов.
type PipelineConfig struct {
	BatchSize         int
	NarrowTitle       string
	NarrowDescription string
	BroadTitle        string
	BroadDescription  string
}

// Validate проверяет конфигурацию.
func (c PipelineConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	return nil
}

// Titles возвращает заголовок и описание письма для режима.
func (c PipelineConfig) Titles(mode Mode) (title, description string) {
	if mode.IsBroad() {
		return c.BroadTitle, c.BroadDescription
	}
	return c.NarrowTitle, c.NarrowDescription
}
