package domain

import (
	"strings"
	"time"
)

const (
	// NarrowPreferenceKey включает покурсовой дайджест.
	NarrowPreferenceKey = "notification_pref"
	// BroadPreferenceKey включает общий дайджест по всем курсам.
	BroadPreferenceKey = "broad_notification_pref"
	// LanguagePreferenceKey хранит предпочитаемый язык пользователя.
	LanguagePreferenceKey = "pref-lang"
)

// CourseEnrollment описывает участие пользователя в курсе.
type CourseEnrollment struct {
	SeeAllCohorts bool   `json:"see_all_cohorts"`
	CohortID      *int64 `json:"cohort_id,omitempty"`
}

// CanSee проверяет, доступна ли пользователю ветка с указанной группой.
func (e CourseEnrollment) CanSee(groupID *int64) bool {
	if e.SeeAllCohorts || groupID == nil {
		return true
	}
	return e.CohortID != nil && *e.CohortID == *groupID
}

// User хранит снимок профиля подписчика из сервиса пользователей.
type User struct {
	ID          string                      `json:"id"`
	Name        string                      `json:"name,omitempty"`
	Email       string                      `json:"email,omitempty"`
	Preferences map[string]string           `json:"preferences"`
	CourseInfo  map[string]CourseEnrollment `json:"course_info,omitempty"`
}

// Subscribed сообщает, подписан ли пользователь на дайджест режима.
// Отсутствие ключа или значение "false" означает отсутствие подписки.
func (u User) Subscribed(mode Mode) bool {
	value, ok := u.Preferences[mode.PreferenceKey()]
	if !ok {
		return false
	}
	return !strings.EqualFold(strings.TrimSpace(value), "false")
}

// Preference возвращает значение предпочтения или пустую строку.
func (u User) Preference(key string) string {
	return u.Preferences[key]
}

// CourseIDs возвращает идентификаторы курсов пользователя.
func (u User) CourseIDs() []string {
	ids := make([]string, 0, len(u.CourseInfo))
	for id := range u.CourseInfo {
		ids = append(ids, id)
	}
	return ids
}

// DigestItem представляет пост или комментарий в ветке.
type DigestItem struct {
	Body      string
	Author    string
	Timestamp time.Time
	Type      string
}

// DigestThread содержит новые записи ветки за окно.
type DigestThread struct {
	ThreadID      string
	CourseID      string
	CommentableID string
	Title         string
	URL           string
	Items         []DigestItem
}

// LatestAt возвращает время самой свежей записи ветки.
func (t DigestThread) LatestAt() time.Time {
	var latest time.Time
	for _, item := range t.Items {
		if item.Timestamp.After(latest) {
			latest = item.Timestamp
		}
	}
	return latest
}

// DigestCourse группирует ветки одного курса. В общем режиме CourseID пустой.
type DigestCourse struct {
	CourseID    string
	Title       string
	URL         string
	ThreadCount int
	Threads     []DigestThread
}

// Digest — дайджест одного пользователя за окно.
type Digest struct {
	Courses []DigestCourse
}

// Empty сообщает, что в дайджесте нет ни одной записи.
func (d Digest) Empty() bool {
	for _, course := range d.Courses {
		for _, thread := range course.Threads {
			if len(thread.Items) > 0 {
				return false
			}
		}
	}
	return true
}

// ThreadCount суммирует количество активных веток по курсам.
func (d Digest) ThreadCount() int {
	total := 0
	for _, course := range d.Courses {
		total += course.ThreadCount
	}
	return total
}
