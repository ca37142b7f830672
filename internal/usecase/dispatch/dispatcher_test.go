package dispatch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-digest/internal/domain"
)

type recordingQueue struct {
	jobs   []domain.DigestBatchJob
	failAt map[int]bool
	calls  int
}

func (q *recordingQueue) Enqueue(_ context.Context, job domain.DigestBatchJob) error {
	q.calls++
	if q.failAt[q.calls] {
		return errors.New("queue is down")
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Receive(context.Context) (domain.DigestBatchJob, domain.AckFunc, error) {
	return domain.DigestBatchJob{}, nil, errors.New("not implemented")
}

func seqOf(n int) iter.Seq2[domain.User, error] {
	return func(yield func(domain.User, error) bool) {
		for i := 1; i <= n; i++ {
			if !yield(domain.User{ID: fmt.Sprint(i)}, nil) {
				return
			}
		}
	}
}

var window = domain.TimeWindow{From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}

func newTestDispatcher(t *testing.T, q domain.BatchQueue, size int) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(q, size, zerolog.Nop())
	require.NoError(t, err)
	n := 0
	d.newID = func() string { n++; return fmt.Sprintf("job-%d", n) }
	d.now = func() time.Time { return window.To }
	return d
}

func TestDispatchBatchCountAndOrder(t *testing.T) {
	cases := []struct {
		users, size int
		sizes       []int
	}{
		{users: 0, size: 5, sizes: nil},
		{users: 1, size: 5, sizes: []int{1}},
		{users: 5, size: 5, sizes: []int{5}},
		{users: 7, size: 5, sizes: []int{5, 2}},
		{users: 10, size: 5, sizes: []int{5, 5}},
		{users: 3, size: 1, sizes: []int{1, 1, 1}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_by_%d", tc.users, tc.size), func(t *testing.T) {
			q := &recordingQueue{}
			stats, err := newTestDispatcher(t, q, tc.size).Dispatch(context.Background(), seqOf(tc.users), window, domain.ModeNarrow)
			require.NoError(t, err)
			assert.Equal(t, tc.users, stats.Users)
			assert.Equal(t, len(tc.sizes), stats.Batches)
			assert.Zero(t, stats.Failed)

			var got []int
			var ids []string
			for _, job := range q.jobs {
				got = append(got, len(job.Users))
				for _, u := range job.Users {
					ids = append(ids, u.ID)
				}
			}
			assert.Equal(t, tc.sizes, got)
			for i, id := range ids {
				assert.Equal(t, fmt.Sprint(i+1), id)
			}
		})
	}
}

func TestDispatchCarriesWindowAndMode(t *testing.T) {
	q := &recordingQueue{}
	_, err := newTestDispatcher(t, q, 2).Dispatch(context.Background(), seqOf(3), window, domain.ModeBroad)
	require.NoError(t, err)
	require.Len(t, q.jobs, 2)
	for i, job := range q.jobs {
		assert.Equal(t, fmt.Sprintf("job-%d", i+1), job.ID)
		assert.Equal(t, window, job.Window())
		assert.Equal(t, domain.ModeBroad, job.Mode)
		assert.Equal(t, window.To, job.RequestedAt)
	}
}

func TestDispatchBatchesDoNotAlias(t *testing.T) {
	q := &recordingQueue{}
	_, err := newTestDispatcher(t, q, 2).Dispatch(context.Background(), seqOf(4), window, domain.ModeNarrow)
	require.NoError(t, err)
	require.Len(t, q.jobs, 2)
	assert.Equal(t, "1", q.jobs[0].Users[0].ID)
	assert.Equal(t, "3", q.jobs[1].Users[0].ID)
}

func TestDispatchContinuesAfterSubmitFailure(t *testing.T) {
	q := &recordingQueue{failAt: map[int]bool{1: true}}
	stats, err := newTestDispatcher(t, q, 2).Dispatch(context.Background(), seqOf(5), window, domain.ModeNarrow)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, q.jobs, 2)
	assert.Equal(t, "3", q.jobs[0].Users[0].ID)
	assert.Equal(t, "5", q.jobs[1].Users[0].ID)
}

func TestDispatchAbortsOnSequenceError(t *testing.T) {
	q := &recordingQueue{}
	users := func(yield func(domain.User, error) bool) {
		for i := 1; i <= 3; i++ {
			if !yield(domain.User{ID: fmt.Sprint(i)}, nil) {
				return
			}
		}
		yield(domain.User{}, domain.ErrSubscriberQuery)
	}
	stats, err := newTestDispatcher(t, q, 2).Dispatch(context.Background(), users, window, domain.ModeNarrow)
	assert.ErrorIs(t, err, domain.ErrSubscriberQuery)
	assert.Equal(t, 1, stats.Batches)
	require.Len(t, q.jobs, 1)
	assert.Len(t, q.jobs[0].Users, 2)
}

func TestNewDispatcherRejectsBadBatchSize(t *testing.T) {
	_, err := NewDispatcher(&recordingQueue{}, 0, zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
