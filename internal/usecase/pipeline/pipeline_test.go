package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-digest/internal/domain"
	"forum-digest/internal/usecase/aggregate"
	"forum-digest/internal/usecase/digest"
	"forum-digest/internal/usecase/dispatch"
	"forum-digest/internal/usecase/preview"
	"forum-digest/internal/usecase/window"
)

var now = time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

type stubStore struct {
	users     map[string]domain.User
	stream    []domain.User
	streamErr error
	fetched   []string
}

func (s *stubStore) FetchUser(_ context.Context, id string) (domain.User, error) {
	s.fetched = append(s.fetched, id)
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *stubStore) DigestSubscribers(context.Context, domain.Mode) iter.Seq2[domain.User, error] {
	return func(yield func(domain.User, error) bool) {
		for _, u := range s.stream {
			if !yield(u, nil) {
				return
			}
		}
		if s.streamErr != nil {
			yield(domain.User{}, s.streamErr)
		}
	}
}

type stubSource struct {
	payload domain.ContentPayload
	err     error
	calls   int
	window  domain.TimeWindow
}

func (s *stubSource) FetchNarrow(_ context.Context, _ []string, w domain.TimeWindow) (domain.ContentPayload, error) {
	s.calls++
	s.window = w
	return s.payload, s.err
}

func (s *stubSource) FetchBroad(_ context.Context, _ map[string][]string, w domain.TimeWindow) (domain.ContentPayload, error) {
	s.calls++
	s.window = w
	return s.payload, s.err
}

type stubRender struct{ calls int }

func (r *stubRender) Render(user domain.User, d domain.Digest, title, _ string, _ domain.Mode) (string, string, error) {
	r.calls++
	return title + " for " + user.ID + ": " + d.Courses[0].Title, "<h1>" + user.ID + "</h1>", nil
}

type memQueue struct{ jobs []domain.DigestBatchJob }

func (q *memQueue) Enqueue(_ context.Context, job domain.DigestBatchJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Receive(context.Context) (domain.DigestBatchJob, domain.AckFunc, error) {
	return domain.DigestBatchJob{}, nil, errors.New("not used")
}

func subscriber(id string) domain.User {
	return domain.User{
		ID:          id,
		Email:       id + "@example.com",
		Preferences: map[string]string{domain.NarrowPreferenceKey: "tok"},
		CourseInfo:  map[string]domain.CourseEnrollment{"org/c1/run": {}},
	}
}

func activity(ts time.Time) domain.UserContent {
	return domain.UserContent{"org/c1/run": domain.CourseContent{
		"t1": {CommentableID: "cm", Title: "Welcome", Content: []domain.ItemContent{{Body: "hello", Username: "bob", UpdatedAt: ts}}},
	}}
}

type fixture struct {
	store  *stubStore
	source *stubSource
	render *stubRender
	queue  *memQueue
	out    *bytes.Buffer
	p      *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  &stubStore{users: map[string]domain.User{}},
		source: &stubSource{},
		render: &stubRender{},
		queue:  &memQueue{},
		out:    &bytes.Buffer{},
	}
	cfg := domain.PipelineConfig{BatchSize: 2, NarrowTitle: "Daily", BroadTitle: "Broad"}
	agg := aggregate.NewAggregator(f.source, aggregate.Links{LMSBase: "https://lms"}, zerolog.Nop())
	disp, err := dispatch.NewDispatcher(f.queue, cfg.BatchSize, zerolog.Nop())
	require.NoError(t, err)
	f.p = New(Deps{
		Resolver:   window.NewResolver(func() time.Time { return now }),
		Store:      f.store,
		Aggregator: agg,
		Preview:    preview.NewRenderer(agg, f.render, cfg, zerolog.Nop()),
		Dispatcher: disp,
		Out:        f.out,
	}, zerolog.Nop())
	return f
}

func TestResolveRunMode(t *testing.T) {
	mode, err := ResolveRunMode(Flags{})
	require.NoError(t, err)
	assert.Equal(t, RunDispatch, mode.Kind)

	mode, err = ResolveRunMode(Flags{ShowHTML: true})
	require.NoError(t, err)
	assert.Equal(t, RunMode{Kind: RunShowRendered, Format: preview.FormatHTML}, mode)

	_, err = ResolveRunMode(Flags{ShowUsers: true, ShowContent: true})
	assert.ErrorIs(t, err, ErrConflictingRunModes)
	_, err = ResolveRunMode(Flags{ShowText: true, ShowHTML: true})
	assert.ErrorIs(t, err, ErrConflictingRunModes)
}

func TestRunInvalidWindowFailsBeforeSource(t *testing.T) {
	f := newFixture(t)
	err := f.p.Run(context.Background(), Request{To: "yesterday", Minutes: 10, UserIDs: []string{"1"}, Mode: domain.ModeNarrow, RunMode: RunMode{Kind: RunShowUsers}})
	require.ErrorIs(t, err, domain.ErrInvalidTimeSpec)
	assert.True(t, strings.HasPrefix(err.Error(), "window:"))
	assert.Empty(t, f.store.fetched)
}

func TestRunShowUsersWithExplicitIDs(t *testing.T) {
	f := newFixture(t)
	f.store.users["1"] = subscriber("1")
	f.store.users["2"] = domain.User{ID: "2"}

	err := f.p.Run(context.Background(), Request{UserIDs: []string{"1", "2", "3"}, Minutes: 1440, Mode: domain.ModeNarrow, RunMode: RunMode{Kind: RunShowUsers}})
	require.NoError(t, err)

	var users []domain.User
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "1", users[0].ID)
	assert.Equal(t, []string{"1", "2", "3"}, f.store.fetched)
}

func TestRunShowUsersEmptyIsArray(t *testing.T) {
	f := newFixture(t)
	err := f.p.Run(context.Background(), Request{UserIDs: []string{"404"}, Minutes: 1440, Mode: domain.ModeNarrow, RunMode: RunMode{Kind: RunShowUsers}})
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(f.out.String()))
}

func TestRunShowContentUsesDefaultWindow(t *testing.T) {
	f := newFixture(t)
	f.store.stream = []domain.User{subscriber("1")}
	midnight := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	f.source.payload = domain.ContentPayload{"1": activity(midnight.Add(-time.Hour))}

	err := f.p.Run(context.Background(), Request{Minutes: 1440, Mode: domain.ModeNarrow, RunMode: RunMode{Kind: RunShowContent}})
	require.NoError(t, err)
	assert.Equal(t, midnight, f.source.window.To)
	assert.Equal(t, midnight.Add(-24*time.Hour), f.source.window.From)

	entries, err := digest.NewSerializer(nil).Decode(f.out.Bytes())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1", entries[0].UserID)
	assert.Equal(t, "Welcome", entries[0].Digest.Courses[0].Threads[0].Title)
}

func TestRunShowContentSourceFailure(t *testing.T) {
	f := newFixture(t)
	f.store.stream = []domain.User{subscriber("1")}
	f.source.err = domain.ErrContentSource
	err := f.p.Run(context.Background(), Request{Minutes: 1440, Mode: domain.ModeNarrow, RunMode: RunMode{Kind: RunShowContent}})
	require.ErrorIs(t, err, domain.ErrContentSource)
	assert.True(t, strings.HasPrefix(err.Error(), "content:"))
}

func TestRunShowRendered(t *testing.T) {
	f := newFixture(t)
	f.store.stream = []domain.User{subscriber("1"), subscriber("2")}
	ts := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	f.source.payload = domain.ContentPayload{"1": activity(ts), "2": activity(ts)}

	err := f.p.Run(context.Background(), Request{Minutes: 1440, Mode: domain.ModeNarrow, RunMode: RunMode{Kind: RunShowRendered, Format: preview.FormatText}})
	require.NoError(t, err)
	assert.Equal(t, "Daily for 1: org-c1", f.out.String())
	assert.Equal(t, 1, f.render.calls)
}

func TestRunShowRenderedNothingToShow(t *testing.T) {
	f := newFixture(t)
	f.store.stream = []domain.User{subscriber("1")}
	err := f.p.Run(context.Background(), Request{Minutes: 1440, Mode: domain.ModeNarrow, RunMode: RunMode{Kind: RunShowRendered, Format: preview.FormatHTML}})
	require.NoError(t, err)
	assert.Empty(t, f.out.String())
	assert.Zero(t, f.render.calls)
}

func TestRunDispatchBatchesSubscribers(t *testing.T) {
	f := newFixture(t)
	f.store.stream = []domain.User{subscriber("1"), subscriber("2"), subscriber("3")}
	err := f.p.Run(context.Background(), Request{Minutes: 60, Mode: domain.ModeNarrow, RunMode: RunMode{Kind: RunDispatch}})
	require.NoError(t, err)
	require.Len(t, f.queue.jobs, 2)
	assert.Len(t, f.queue.jobs[0].Users, 2)
	assert.Len(t, f.queue.jobs[1].Users, 1)
	assert.Equal(t, time.Hour, f.queue.jobs[0].Window().Duration())
	assert.Zero(t, f.source.calls)
}

func TestRunDispatchSubscriberQueryFailure(t *testing.T) {
	f := newFixture(t)
	f.store.stream = []domain.User{subscriber("1"), subscriber("2"), subscriber("3")}
	f.store.streamErr = errors.New("503")
	err := f.p.Run(context.Background(), Request{Minutes: 60, Mode: domain.ModeNarrow, RunMode: RunMode{Kind: RunDispatch}})
	require.ErrorIs(t, err, domain.ErrSubscriberQuery)
	assert.True(t, strings.HasPrefix(err.Error(), "subscribers:"))
	assert.Len(t, f.queue.jobs, 1)
}
