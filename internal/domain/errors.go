package domain

import "errors"

var (
	// ErrInvalidTimeSpec возвращается при некорректной границе окна или длительности.
	ErrInvalidTimeSpec = errors.New("invalid time spec")
	// ErrUserNotFound возвращается, если сервис пользователей не знает идентификатор.
	ErrUserNotFound = errors.New("user not found")
	// ErrMissingPreference означает, что пользователь не подписан на дайджест режима.
	ErrMissingPreference = errors.New("user has no digest subscription")
	// ErrSubscriberQuery прерывает запуск при сбое выборки подписчиков.
	ErrSubscriberQuery = errors.New("subscriber query failed")
	// ErrContentSource оборачивает сбои сервиса обсуждений.
	ErrContentSource = errors.New("comments service failed")
	// ErrSequenceConsumed возвращается при повторном проходе одноразовой последовательности.
	ErrSequenceConsumed = errors.New("sequence already consumed")
	// ErrPermanentRecipient означает, что письмо получателю не будет доставлено
	// и при повторе.
	ErrPermanentRecipient = errors.New("recipient rejected")
	// ErrQueueClosed возвращается, когда брокер закрыл доставку и очередь
	// нужно открыть заново.
	ErrQueueClosed = errors.New("queue closed by broker")
	// ErrInvalidConfig возвращается при некорректной конфигурации.
	ErrInvalidConfig = errors.New("invalid pipeline config")
)
