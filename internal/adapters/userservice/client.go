// Package userservice реализует HTTP клиент сервиса пользователей и их предпочтений.
package userservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

const defaultPageSize = 100

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	user, pass string
	pageSize   int
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithBasicAuth включает HTTP basic auth. Пустое имя отключает её.
func WithBasicAuth(user, pass string) Option {
	return func(c *Client) {
		c.user, c.pass = user, pass
	}
}

// WithPageSize задаёт размер страницы выборки подписчиков.
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		pageSize:   defaultPageSize,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type userPayload struct {
	ID          json.RawMessage                    `json:"id"`
	Name        string                             `json:"name"`
	Email       string                             `json:"email"`
	Preferences map[string]any                     `json:"preferences"`
	CourseInfo  map[string]domain.CourseEnrollment `json:"course_info"`
}

type pagePayload struct {
	Next    *string       `json:"next"`
	Results []userPayload `json:"results"`
}

// FetchUser возвращает пользователя по идентификатору. 404 отображается в
// domain.ErrUserNotFound.
func (c *Client) FetchUser(ctx context.Context, id string) (domain.User, error) {
	var payload userPayload
	endpoint := fmt.Sprintf("/notifier_api/v1/users/%s/", url.PathEscape(id))
	if err := c.get(ctx, "fetch_user", endpoint, nil, &payload); err != nil {
		return domain.User{}, err
	}
	return payload.toDomain()
}

// DigestSubscribers лениво обходит страницы подписчиков режима. Следующая
// страница запрашивается только после выдачи всех пользователей текущей.
func (c *Client) DigestSubscribers(ctx context.Context, mode domain.Mode) iter.Seq2[domain.User, error] {
	return func(yield func(domain.User, error) bool) {
		for page := 1; ; page++ {
			query := url.Values{}
			query.Set("filter", mode.QueryFilter())
			query.Set("page_size", strconv.Itoa(c.pageSize))
			query.Set("page", strconv.Itoa(page))

			var payload pagePayload
			if err := c.get(ctx, "list_subscribers", "/notifier_api/v1/users/", query, &payload); err != nil {
				yield(domain.User{}, err)
				return
			}
			for _, raw := range payload.Results {
				user, err := raw.toDomain()
				if err != nil {
					yield(domain.User{}, err)
					return
				}
				if !yield(user, nil) {
					return
				}
			}
			if payload.Next == nil || *payload.Next == "" {
				return
			}
		}
	}
}

func (p userPayload) toDomain() (domain.User, error) {
	id, err := decodeID(p.ID)
	if err != nil {
		return domain.User{}, err
	}
	prefs := make(map[string]string, len(p.Preferences))
	for k, v := range p.Preferences {
		switch val := v.(type) {
		case string:
			prefs[k] = val
		case nil:
			prefs[k] = ""
		default:
			prefs[k] = fmt.Sprint(val)
		}
	}
	return domain.User{ID: id, Name: p.Name, Email: p.Email, Preferences: prefs, CourseInfo: p.CourseInfo}, nil
}

// decodeID принимает как числовой, так и строковый идентификатор.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("user service: user without id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("user service: decode id: %w", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("user service: decode id: %w", err)
	}
	return n.String(), nil
}

func (c *Client) get(ctx context.Context, operation, endpoint string, query url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("user_service", operation, c.baseURL.Host, start, err)
	}()

	resolved := *c.baseURL
	basePath := strings.TrimSuffix(c.baseURL.Path, "/")
	resolved.Path = path.Clean(basePath+endpoint) + "/"
	resolved.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-EDX-API-Key", c.apiKey)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("user service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("user service error: status=%d message=%s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ domain.PreferenceStore = (*Client)(nil)
