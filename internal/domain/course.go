package domain

import (
	"fmt"
	"strings"
)

// CourseTitle превращает идентификатор курса вида "MITx/6.002x/2012_Fall"
// или "course-v1:MITx+6.002x+2012_Fall" в короткое название "MITx-6.002x".
func CourseTitle(courseID string) string {
	id := strings.TrimSpace(courseID)
	if rest, ok := strings.CutPrefix(id, "course-v1:"); ok {
		if parts := strings.Split(rest, "+"); len(parts) >= 2 {
			return parts[0] + "-" + parts[1]
		}
		return rest
	}
	if parts := strings.Split(id, "/"); len(parts) == 3 {
		return parts[0] + "-" + parts[1]
	}
	return id
}

// CourseURL возвращает ссылку на курс в LMS.
func CourseURL(lmsBase, courseID string) string {
	return fmt.Sprintf("%s/courses/%s/", strings.TrimRight(lmsBase, "/"), courseID)
}

// ThreadURL возвращает ссылку на ветку обсуждения курса.
func ThreadURL(lmsBase, courseID, threadID, commentableID string) string {
	return CourseURL(lmsBase, courseID) + fmt.Sprintf("discussion/forum/%s/threads/%s", commentableID, threadID)
}
