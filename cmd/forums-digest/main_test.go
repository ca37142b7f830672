package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-digest/internal/usecase/pipeline"
	"forum-digest/internal/usecase/window"
)

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, window.DefaultMinutes, opts.minutes)
	assert.Equal(t, "json", opts.format)
	assert.False(t, opts.broad)
	assert.Equal(t, pipeline.Flags{}, opts.diagnostics)
}

func TestParseFlagsAll(t *testing.T) {
	opts, err := parseFlags([]string{"--to_datetime=2024-01-02", "--minutes=60", "--users=1, 2,,3", "--broad", "--show-html"})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", opts.to)
	assert.Equal(t, 60, opts.minutes)
	assert.Equal(t, []string{"1", "2", "3"}, splitIDs(opts.users))
	assert.True(t, opts.broad)
	assert.True(t, opts.diagnostics.ShowHTML)
}

func TestParseFlagsUnknown(t *testing.T) {
	_, err := parseFlags([]string{"--nope"})
	assert.Error(t, err)
}
