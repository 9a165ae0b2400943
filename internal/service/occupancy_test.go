package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "9:05", want: 545},
		{in: "23:59", want: 1439},
		{in: "10:30:45", want: 630},
		{in: "24:00", want: 1440},
		{in: "24:00:00", want: 1440},
		{in: "24:01", wantErr: true},
		{in: "24:00:30", wantErr: true},
		{in: "25:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "0900", wantErr: true},
		{in: "", wantErr: true},
		{in: "-1:00", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseClock(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, appErrors.ErrParseFailure)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestContainsWindowBoundaries(t *testing.T) {
	subject := models.Subject{ID: "1", Day: "Monday", StartTime: "09:00", EndTime: "10:00"}
	at := func(day, hour, minute int) time.Time {
		return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
	}

	ok, err := Contains(subject, at(1, 9, 0))
	require.NoError(t, err)
	assert.True(t, ok, "start is inclusive")

	ok, err = Contains(subject, at(1, 9, 59))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Contains(subject, at(1, 10, 0))
	require.NoError(t, err)
	assert.False(t, ok, "end is exclusive")

	ok, err = Contains(subject, at(2, 9, 30))
	require.NoError(t, err)
	assert.False(t, ok, "other weekday")
}

func TestContainsSessionEndingAtMidnight(t *testing.T) {
	subject := models.Subject{ID: "1", Day: "Monday", StartTime: "22:00", EndTime: "24:00"}

	ok, err := Contains(subject, time.Date(2024, time.January, 1, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Contains(subject, time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok, "midnight belongs to the next day")
}

func TestContainsAcceptsSeconds(t *testing.T) {
	subject := models.Subject{Day: "Monday", StartTime: "09:00:00", EndTime: "10:00:00"}
	ok, err := Contains(subject, monday0930)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOccupyingReportsMalformedButKeepsMatches(t *testing.T) {
	subjects := []models.Subject{
		{ID: "1", Day: "Monday", StartTime: "09:00", EndTime: "10:00"},
		{ID: "2", Day: "Monday", StartTime: "nine", EndTime: "10:00"},
		{ID: "3", Day: "Monday", StartTime: "08:00", EndTime: "12:00"},
	}

	matches, err := Occupying(subjects, monday0930)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrParseFailure)
	assert.Equal(t, 1, countJoined(err))
	require.Len(t, matches, 2)
	assert.Equal(t, models.ID("1"), matches[0].ID)
	assert.Equal(t, models.ID("3"), matches[1].ID)
}

func TestOccupyingNoMatches(t *testing.T) {
	matches, err := Occupying(labSubjects(), time.Date(2024, time.January, 3, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotNil(t, matches)
}

func TestFormatClock(t *testing.T) {
	cases := map[string]string{
		"00:15": "12:15 AM",
		"09:00": "9:00 AM",
		"12:00": "12:00 PM",
		"13:05": "1:05 PM",
		"23:59": "11:59 PM",
		"24:00": "12:00 AM",
	}
	for in, want := range cases {
		got, err := FormatClock(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := FormatClock("late")
	assert.ErrorIs(t, err, appErrors.ErrParseFailure)
}
