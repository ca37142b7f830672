package heartbeat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-digest/internal/domain"
)

func TestSnitchPosts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		hits.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, NewSnitch(srv.URL, nil).Beat(context.Background(), domain.BatchReport{}))
	assert.Equal(t, int32(1), hits.Load())
}

func TestSnitchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	assert.Error(t, NewSnitch(srv.URL, nil).Beat(context.Background(), domain.BatchReport{}))
}

type countingBeat struct {
	n   int
	err error
}

func (c *countingBeat) Beat(context.Context, domain.BatchReport) error {
	c.n++
	return c.err
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &countingBeat{}, &countingBeat{err: boom}
	hb := NewMulti(a, nil, NewSnitch("", nil), b)
	require.NotNil(t, hb)

	err := hb.Beat(context.Background(), domain.BatchReport{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}

func TestMultiEmptyIsNil(t *testing.T) {
	assert.Nil(t, NewMulti(nil, NewSnitch("", nil)))
}
