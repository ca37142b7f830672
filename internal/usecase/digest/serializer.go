// Package digest сериализует собранные дайджесты для диагностического вывода.
package digest

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"forum-digest/internal/domain"
)

// Теги типов сущностей дайджеста в формате обмена.
const (
	TagDigest = "digest"
	TagCourse = "digest_course"
	TagThread = "digest_thread"
	TagItem   = "digest_item"
)

// ErrUnexpectedTag возвращается при декодировании сущности с чужим тегом.
var ErrUnexpectedTag = errors.New("unexpected entity tag")

// Entry содержит дайджест одного пользователя.
type Entry struct {
	UserID string
	Digest domain.Digest
}

// Serializer собирает вывод из двух частей: кодирования скаляров (моменты
// времени) и диспетчеризации по тегу для четырёх сущностей дайджеста.
type Serializer struct {
	codec  Codec
	layout string
}

// NewSerializer создаёт сериализатор. nil codec означает JSON.
func NewSerializer(codec Codec) *Serializer {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Serializer{codec: codec, layout: time.RFC3339Nano}
}

// Encode кодирует записи в w.
func (s *Serializer) Encode(w io.Writer, entries []Entry) error {
	out := make([]wireEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, wireEntry{UserID: e.UserID, Digest: s.encode(e.Digest).(wireDigest)})
	}
	data, err := s.codec.Marshal(out)
	if err != nil {
		return fmt.Errorf("%s encode: %w", s.codec.Name(), err)
	}
	_, err = w.Write(data)
	return err
}

// WriteSeq материализует последовательность дайджестов и кодирует её.
func (s *Serializer) WriteSeq(w io.Writer, seq iter.Seq2[string, domain.Digest]) (int, error) {
	var entries []Entry
	for id, d := range seq {
		entries = append(entries, Entry{UserID: id, Digest: d})
	}
	return len(entries), s.Encode(w, entries)
}

// Decode восстанавливает записи из закодированных данных.
func (s *Serializer) Decode(data []byte) ([]Entry, error) {
	var in []wireEntry
	if err := s.codec.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%s decode: %w", s.codec.Name(), err)
	}
	entries := make([]Entry, 0, len(in))
	for _, we := range in {
		d, err := s.decodeDigest(we.Digest)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", we.UserID, err)
		}
		entries = append(entries, Entry{UserID: we.UserID, Digest: d})
	}
	return entries, nil
}

// encode диспетчеризует значение по типу сущности.
func (s *Serializer) encode(v any) any {
	switch x := v.(type) {
	case domain.Digest:
		courses := make([]wireCourse, 0, len(x.Courses))
		for _, c := range x.Courses {
			courses = append(courses, s.encode(c).(wireCourse))
		}
		return wireDigest{Type: TagDigest, Courses: courses}
	case domain.DigestCourse:
		threads := make([]wireThread, 0, len(x.Threads))
		for _, t := range x.Threads {
			threads = append(threads, s.encode(t).(wireThread))
		}
		return wireCourse{Type: TagCourse, CourseID: x.CourseID, Title: x.Title, URL: x.URL, ThreadCount: x.ThreadCount, Threads: threads}
	case domain.DigestThread:
		items := make([]wireItem, 0, len(x.Items))
		for _, it := range x.Items {
			items = append(items, s.encode(it).(wireItem))
		}
		return wireThread{Type: TagThread, ThreadID: x.ThreadID, CourseID: x.CourseID, CommentableID: x.CommentableID, Title: x.Title, URL: x.URL, Items: items}
	case domain.DigestItem:
		return wireItem{Type: TagItem, Body: x.Body, Author: x.Author, Timestamp: s.encode(x.Timestamp).(string), ItemType: x.Type}
	case time.Time:
		return x.UTC().Format(s.layout)
	default:
		return v
	}
}

func (s *Serializer) decodeDigest(w wireDigest) (domain.Digest, error) {
	if err := expectTag(w.Type, TagDigest); err != nil {
		return domain.Digest{}, err
	}
	var d domain.Digest
	for _, wc := range w.Courses {
		if err := expectTag(wc.Type, TagCourse); err != nil {
			return domain.Digest{}, err
		}
		c := domain.DigestCourse{CourseID: wc.CourseID, Title: wc.Title, URL: wc.URL, ThreadCount: wc.ThreadCount}
		for _, wt := range wc.Threads {
			t, err := s.decodeThread(wt)
			if err != nil {
				return domain.Digest{}, err
			}
			c.Threads = append(c.Threads, t)
		}
		d.Courses = append(d.Courses, c)
	}
	return d, nil
}

func (s *Serializer) decodeThread(w wireThread) (domain.DigestThread, error) {
	if err := expectTag(w.Type, TagThread); err != nil {
		return domain.DigestThread{}, err
	}
	t := domain.DigestThread{ThreadID: w.ThreadID, CourseID: w.CourseID, CommentableID: w.CommentableID, Title: w.Title, URL: w.URL}
	for _, wi := range w.Items {
		if err := expectTag(wi.Type, TagItem); err != nil {
			return domain.DigestThread{}, err
		}
		ts, err := time.Parse(s.layout, wi.Timestamp)
		if err != nil {
			return domain.DigestThread{}, fmt.Errorf("item timestamp: %w", err)
		}
		t.Items = append(t.Items, domain.DigestItem{Body: wi.Body, Author: wi.Author, Timestamp: ts.UTC(), Type: wi.ItemType})
	}
	return t, nil
}

func expectTag(got, want string) error {
	if got != want {
		return fmt.Errorf("%w: got %q, want %q", ErrUnexpectedTag, got, want)
	}
	return nil
}

type wireEntry struct {
	UserID string     `json:"user_id" cbor:"user_id"`
	Digest wireDigest `json:"digest" cbor:"digest"`
}

type wireDigest struct {
	Type    string       `json:"_type" cbor:"_type"`
	Courses []wireCourse `json:"courses" cbor:"courses"`
}

type wireCourse struct {
	Type        string       `json:"_type" cbor:"_type"`
	CourseID    string       `json:"course_id" cbor:"course_id"`
	Title       string       `json:"title" cbor:"title"`
	URL         string       `json:"url" cbor:"url"`
	ThreadCount int          `json:"thread_count" cbor:"thread_count"`
	Threads     []wireThread `json:"threads" cbor:"threads"`
}

type wireThread struct {
	Type          string     `json:"_type" cbor:"_type"`
	ThreadID      string     `json:"thread_id" cbor:"thread_id"`
	CourseID      string     `json:"course_id" cbor:"course_id"`
	CommentableID string     `json:"commentable_id" cbor:"commentable_id"`
	Title         string     `json:"title" cbor:"title"`
	URL           string     `json:"url" cbor:"url"`
	Items         []wireItem `json:"items" cbor:"items"`
}

type wireItem struct {
	Type      string `json:"_type" cbor:"_type"`
	Body      string `json:"body" cbor:"body"`
	Author    string `json:"author" cbor:"author"`
	Timestamp string `json:"timestamp" cbor:"timestamp"`
	ItemType  string `json:"type,omitempty" cbor:"type,omitempty"`
}
