package domain

import (
	"context"
	"time"
)

// DigestBatchJob — пачка подписчиков, передаваемая воркеру одной задачей.
type DigestBatchJob struct {
	ID          string    `json:"job_id"`
	Users       []User    `json:"users"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Mode        Mode      `json:"mode"`
	RequestedAt time.Time `json:"requested_at"`
}

// Window возвращает окно задачи.
func (j DigestBatchJob) Window() TimeWindow {
	return TimeWindow{From: j.From, To: j.To}
}

// BatchQueue описывает асинхронную очередь пачек дайджеста.
type BatchQueue interface {
	Enqueue(ctx context.Context, job DigestBatchJob) error
	Receive(ctx context.Context) (DigestBatchJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error

// BatchJobStatusRepo отслеживает попытки обработки пачек.
type BatchJobStatusRepo interface {
	// EnsureBatchJob регистрирует попытку обработки и возвращает признак
	// завершённой задачи и номер текущей попытки.
	EnsureBatchJob(ctx context.Context, jobID string) (done bool, attempt int, err error)
	// MarkBatchJobDone помечает задачу завершённой.
	MarkBatchJobDone(ctx context.Context, jobID string) error
	// PruneBatchJobs удаляет записи, не обновлявшиеся с момента before.
	PruneBatchJobs(ctx context.Context, before time.Time) (int64, error)
}

// RunLedger гарантирует, что окно каждого режима отправляется одним узлом.
type RunLedger interface {
	// Acquire регистрирует запуск окна. При конфликте возвращает false и
	// имя узла, который уже взял окно.
	Acquire(ctx context.Context, window TimeWindow, mode Mode, node string) (acquired bool, owner string, err error)
	// Prune удаляет записи старше указанного момента.
	Prune(ctx context.Context, before time.Time) (int64, error)
}
