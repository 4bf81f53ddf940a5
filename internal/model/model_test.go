package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesUID(t *testing.T) {
	tests := []struct {
		name     string
		remoteID string
		want     string
	}{
		{"plain uid", "abc123", "abc123"},
		{"instance suffix stripped", "abc123-1700000000000", "abc123"},
		{"hyphenated uid without numeric suffix", "team-standup-weekly", "team-standup-weekly"},
		{"mixed suffix stays", "abc-12x", "abc-12x"},
		{"uuid style", "8f14e45f-ceea-4672", "8f14e45f-ceea-4672"},
		{"uuid style with offset", "8f14e45f-ceea-4672-1700000000000", "8f14e45f-ceea-4672"},
		{"trailing hyphen", "abc-", "abc-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SeriesUID(tt.remoteID))
		})
	}
}

func TestStableIDRoundTrip(t *testing.T) {
	orig := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	id := StableID("uid-1", orig)
	assert.Equal(t, "uid-1-1710493200000", id)

	offset, ok := InstanceOffset(id)
	require.True(t, ok)
	assert.True(t, offset.Equal(orig))
	assert.Equal(t, "uid-1", SeriesUID(id))
}

func TestInstanceOffsetAbsent(t *testing.T) {
	_, ok := InstanceOffset("plainuid")
	assert.False(t, ok)

	_, ok = InstanceOffset("uid-notdigits")
	assert.False(t, ok)
}

func TestNoteRecordInstanceOffset(t *testing.T) {
	rec := NoteRecord{RemoteID: "series-1700000000000"}
	offset, ok := rec.InstanceOffset()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), offset.UnixMilli())
}
