package aggregate

import (
	"cmp"
	"slices"
	"strings"

	"forum-digest/internal/domain"
)

const (
	// MaxCourseThreads ограничивает число веток курса в дайджесте.
	MaxCourseThreads = 30
	// MaxThreadItems ограничивает число записей ветки.
	MaxThreadItems = 10
	// ThreadTitleMaxLen задаёт предельную длину заголовка ветки.
	ThreadTitleMaxLen = 140
	// ThreadItemMaxLen задаёт предельную длину текста записи.
	ThreadItemMaxLen = 140
)

// Links задаёт базу для ссылок в дайджесте.
type Links struct {
	LMSBase string
}

// BuildNarrow строит покурсовой дайджест пользователя. В дайджест попадают
// только курсы, на которые пользователь записан, и ветки, видимые его группе.
func BuildNarrow(user domain.User, content domain.UserContent, window domain.TimeWindow, links Links) domain.Digest {
	courses := make([]domain.DigestCourse, 0, len(content))
	for _, courseID := range sortedKeys(content) {
		enrollment, ok := user.CourseInfo[courseID]
		if !ok {
			continue
		}
		threads := visibleThreads(courseID, content[courseID], enrollment, window, links)
		if len(threads) == 0 {
			continue
		}
		courses = append(courses, newCourse(courseID, domain.CourseTitle(courseID), domain.CourseURL(links.LMSBase, courseID), threads))
	}
	slices.SortStableFunc(courses, func(a, b domain.DigestCourse) int {
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})
	return domain.Digest{Courses: courses}
}

// BuildBroad строит общий дайджест: ветки всех курсов пользователя
// сливаются в одну группу без курса.
func BuildBroad(user domain.User, content domain.UserContent, window domain.TimeWindow, links Links) domain.Digest {
	var threads []domain.DigestThread
	for _, courseID := range sortedKeys(content) {
		enrollment, ok := user.CourseInfo[courseID]
		if !ok {
			continue
		}
		threads = append(threads, visibleThreads(courseID, content[courseID], enrollment, window, links)...)
	}
	if len(threads) == 0 {
		return domain.Digest{}
	}
	return domain.Digest{Courses: []domain.DigestCourse{
		newCourse("", "", strings.TrimRight(links.LMSBase, "/")+"/dashboard", threads),
	}}
}

func visibleThreads(courseID string, course domain.CourseContent, enrollment domain.CourseEnrollment, window domain.TimeWindow, links Links) []domain.DigestThread {
	threads := make([]domain.DigestThread, 0, len(course))
	for _, threadID := range sortedKeys(course) {
		tc := course[threadID]
		if !enrollment.CanSee(tc.GroupID) {
			continue
		}
		thread := buildThread(courseID, threadID, tc, window, links)
		if len(thread.Items) == 0 {
			continue
		}
		threads = append(threads, thread)
	}
	return threads
}

func buildThread(courseID, threadID string, tc domain.ThreadContent, window domain.TimeWindow, links Links) domain.DigestThread {
	items := make([]domain.DigestItem, 0, len(tc.Content))
	for _, raw := range tc.Content {
		ts := raw.UpdatedAt.UTC()
		if !window.Contains(ts) {
			continue
		}
		items = append(items, domain.DigestItem{
			Body:      clean(raw.Body, ThreadItemMaxLen),
			Author:    raw.Username,
			Timestamp: ts,
			Type:      raw.Type,
		})
	}
	slices.SortStableFunc(items, func(a, b domain.DigestItem) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(items) > MaxThreadItems {
		items = items[:MaxThreadItems]
	}
	return domain.DigestThread{
		ThreadID:      threadID,
		CourseID:      courseID,
		CommentableID: tc.CommentableID,
		Title:         clean(tc.Title, ThreadTitleMaxLen),
		URL:           domain.ThreadURL(links.LMSBase, courseID, threadID, tc.CommentableID),
		Items:         items,
	}
}

// newCourse упорядочивает ветки от свежих к старым и обрезает список.
// ThreadCount хранит количество веток до обрезки.
func newCourse(courseID, title, url string, threads []domain.DigestThread) domain.DigestCourse {
	slices.SortStableFunc(threads, func(a, b domain.DigestThread) int {
		if c := b.LatestAt().Compare(a.LatestAt()); c != 0 {
			return c
		}
		return cmp.Compare(a.ThreadID, b.ThreadID)
	})
	count := len(threads)
	if len(threads) > MaxCourseThreads {
		threads = threads[:MaxCourseThreads]
	}
	return domain.DigestCourse{
		CourseID:    courseID,
		Title:       title,
		URL:         url,
		ThreadCount: count,
		Threads:     threads,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
