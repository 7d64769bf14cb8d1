package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	got, err := parseTime("2026-02-03T04:05:06Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC), got.UTC())

	got, err = parseTime("1767225600")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseTime("last tuesday")
	assert.Error(t, err)
}
