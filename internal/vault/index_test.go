package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIndex(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.CreateNote("Meetings/Standup 2024-01-08.md", Frontmatter{
		KeyRemoteID: "weekly-1704708000000",
		"scheduled": "2024-01-08 10:00:00",
	}, ""))
	require.NoError(t, store.CreateNote("Meetings/Review 2024-01-10.md", Frontmatter{
		KeyRemoteID: "one-off",
		"scheduled": "2024-01-10",
	}, ""))
	// Notes without a remote marker stay out of the index.
	require.NoError(t, store.CreateNote("Journal.md", Frontmatter{KeyTitle: "Journal"}, ""))
	require.NoError(t, store.CreateNote("Plain.md", nil, "no frontmatter at all"))

	index, err := BuildIndex(store, "scheduled")
	require.NoError(t, err)
	require.Len(t, index, 2)

	byPath := map[string]int{}
	for i, rec := range index {
		byPath[rec.Path] = i
	}

	standup := index[byPath["Meetings/Standup 2024-01-08.md"]]
	assert.Equal(t, "weekly-1704708000000", standup.RemoteID)
	assert.Equal(t, "weekly", standup.SeriesUID)
	assert.Equal(t, time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC), standup.Start)

	review := index[byPath["Meetings/Review 2024-01-10.md"]]
	assert.Equal(t, "one-off", review.RemoteID)
	assert.Equal(t, "one-off", review.SeriesUID)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), review.Start)
}

func TestParseStartShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want time.Time
	}{
		{"rfc3339", "2024-01-08T10:00:00Z", time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{"space separated", "2024-01-08 10:00:00", time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{"minutes only", "2024-01-08 10:00", time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{"date only", "2024-01-08", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
		{"typed time", time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC), time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{"garbage", "next tuesday", time.Time{}},
		{"wrong type", 42, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseStart(tt.raw))
		})
	}
}

func TestFormatStartRoundTrips(t *testing.T) {
	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, start, parseStart(FormatStart(start, false)))
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), parseStart(FormatStart(start, true)))
}

func TestFormatEnd(t *testing.T) {
	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)

	assert.Equal(t, "2024-01-08 10:45:00", FormatEnd(start, end, false))
	assert.Equal(t, 45, FormatEnd(start, end, true))
}
