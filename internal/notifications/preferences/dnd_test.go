// internal/notifications/preferences/dnd_test.go
package preferences

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInDoNotDisturbWindow(t *testing.T) {
	tests := []struct {
		name       string
		now        string
		start, end string
		want       bool
	}{
		{name: "wrapping, late evening", now: "23:30:00", start: "22:00:00", end: "08:00:00", want: true},
		{name: "wrapping, morning after end", now: "09:00:00", start: "22:00:00", end: "08:00:00", want: false},
		{name: "wrapping, one second before end", now: "07:59:59", start: "22:00:00", end: "08:00:00", want: true},
		{name: "wrapping, exactly at start", now: "22:00:00", start: "22:00:00", end: "08:00:00", want: true},
		{name: "wrapping, exactly at end", now: "08:00:00", start: "22:00:00", end: "08:00:00", want: false},
		{name: "same day, inside", now: "12:30:00", start: "12:00:00", end: "14:00:00", want: true},
		{name: "same day, before", now: "11:59:59", start: "12:00:00", end: "14:00:00", want: false},
		{name: "same day, at end", now: "14:00:00", start: "12:00:00", end: "14:00:00", want: false},
		{name: "empty window", now: "12:00:00", start: "12:00:00", end: "12:00:00", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InDoNotDisturbWindow(tt.now, tt.start, tt.end))
		})
	}
}

func TestNormalizeTimeOfDay(t *testing.T) {
	got, err := NormalizeTimeOfDay("22:00")
	require.NoError(t, err)
	assert.Equal(t, "22:00:00", got)

	got, err = NormalizeTimeOfDay("07:59:59")
	require.NoError(t, err)
	assert.Equal(t, "07:59:59", got)

	for _, bad := range []string{"", "25:00", "7pm", "12:00:00:00"} {
		_, err := NormalizeTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfDay_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 5, 1, 21, 30, 0, 0, time.UTC)
	assert.Equal(t, "23:30:00", TimeOfDay(ts, loc))
}
