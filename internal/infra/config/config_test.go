package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-digest/internal/domain"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Digest.BatchSize)
	assert.Equal(t, 1440, cfg.Digest.IntervalMinutes)
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Comments.Timeout)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("DIGEST_BATCH_SIZE", "50")
	t.Setenv("DIGEST_BROAD_TITLE", "Everything")
	t.Setenv("TG_OPS_CHAT_ID", "-1001")

	cfg, err := Parse()
	require.NoError(t, err)
	p, err := cfg.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, 50, p.BatchSize)
	title, _ := p.Titles(domain.ModeBroad)
	assert.Equal(t, "Everything", title)
	assert.Equal(t, int64(-1001), cfg.Heartbeat.TGChatID)
}

func TestPipelineRejectsNonPositiveBatch(t *testing.T) {
	t.Setenv("DIGEST_BATCH_SIZE", "0")
	cfg, err := Parse()
	require.NoError(t, err)
	_, err = cfg.Pipeline()
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
