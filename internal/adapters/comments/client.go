// Package comments реализует HTTP клиент сервиса обсуждений, отдающего активность
// пользователей за окно.
package comments

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

const windowLayout = "2006-01-02 15:04:05-0700"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchNarrow запрашивает активность по курсам пользователей.
func (c *Client) FetchNarrow(ctx context.Context, userIDs []string, window domain.TimeWindow) (domain.ContentPayload, error) {
	ids := slices.Clone(userIDs)
	slices.SortFunc(ids, compareIDs)
	form := windowForm(window)
	form.Set("user_ids", strings.Join(ids, ","))
	return c.post(ctx, "notifications", "/api/v1/notifications", form)
}

// FetchBroad запрашивает активность по всем курсам, перечисленным для
// каждого пользователя.
func (c *Client) FetchBroad(ctx context.Context, coursesByUser map[string][]string, window domain.TimeWindow) (domain.ContentPayload, error) {
	form := windowForm(window)
	form.Set("users_with_courses", EncodeUsersWithCourses(coursesByUser))
	return c.post(ctx, "broad_notifications", "/api/v1/broad/notifications", form)
}

// EncodeUsersWithCourses собирает строку вида
// "uid::course1,course2:::uid2::course3" в порядке возрастания uid.
func EncodeUsersWithCourses(coursesByUser map[string][]string) string {
	ids := make([]string, 0, len(coursesByUser))
	for id := range coursesByUser {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+"::"+strings.Join(coursesByUser[id], ","))
	}
	return strings.Join(parts, ":::")
}

// compareIDs упорядочивает числовые идентификаторы по значению, остальные
// лексикографически.
func compareIDs(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(x, y)
	}
	return strings.Compare(a, b)
}

func windowForm(window domain.TimeWindow) url.Values {
	form := url.Values{}
	form.Set("from", window.From.UTC().Format(windowLayout))
	form.Set("to", window.To.UTC().Format(windowLayout))
	return form
}

type itemPayload struct {
	Body      string `json:"body"`
	Username  string `json:"username"`
	UpdatedAt string `json:"updated_at"`
	Type      string `json:"type"`
}

type threadPayload struct {
	CommentableID string        `json:"commentable_id"`
	Title         string        `json:"title"`
	GroupID       *int64        `json:"group_id"`
	Content       []itemPayload `json:"content"`
}

type responsePayload map[string]map[string]map[string]threadPayload

func (c *Client) post(ctx context.Context, operation, endpoint string, form url.Values) (payload domain.ContentPayload, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("comments_service", operation, endpoint, start, err)
		if err != nil {
			err = fmt.Errorf("%w: %w", domain.ErrContentSource, err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Edx-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comments service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("comments service error: status=%d message=%s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var raw responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return convert(raw)
}

func convert(raw responsePayload) (domain.ContentPayload, error) {
	out := make(domain.ContentPayload, len(raw))
	for userID, courses := range raw {
		uc := make(domain.UserContent, len(courses))
		for courseID, threads := range courses {
			cc := make(domain.CourseContent, len(threads))
			for threadID, t := range threads {
				items := make([]domain.ItemContent, 0, len(t.Content))
				for _, it := range t.Content {
					ts, err := parseTimestamp(it.UpdatedAt)
					if err != nil {
						return nil, fmt.Errorf("thread %s: %w", threadID, err)
					}
					items = append(items, domain.ItemContent{Body: it.Body, Username: it.Username, UpdatedAt: ts, Type: it.Type})
				}
				cc[threadID] = domain.ThreadContent{CommentableID: t.CommentableID, Title: t.Title, GroupID: t.GroupID, Content: items}
			}
			uc[courseID] = cc
		}
		out[userID] = uc
	}
	return out, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable updated_at %q", raw)
}

var _ domain.ContentSource = (*Client)(nil)
