package dates

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnixSecondsAndMillis(t *testing.T) {
	seconds := Parse(int64(1686823800))
	millis := Parse(int64(1686823800000))

	require.False(t, seconds.IsZero())
	assert.Equal(t, seconds, millis, "seconds and milliseconds must disambiguate to the same instant")
	assert.Equal(t, "2023-06-15T10:10:00Z", seconds.Format(time.RFC3339))
}

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want string
		zero bool
	}{
		{name: "rfc3339", raw: "2023-06-15T14:30:00Z", want: "2023-06-15T14:30:00Z"},
		{name: "rfc3339 offset", raw: "2023-06-15T16:30:00+02:00", want: "2023-06-15T14:30:00Z"},
		{name: "date only", raw: "2023-06-15", want: "2023-06-15T00:00:00Z"},
		{name: "locale long", raw: "June 15, 2023", want: "2023-06-15T00:00:00Z"},
		{name: "numeric string seconds", raw: "1686839400", want: "2023-06-15T14:30:00Z"},
		{name: "numeric string millis", raw: "1686839400000", want: "2023-06-15T14:30:00Z"},
		{name: "float seconds", raw: float64(1686839400), want: "2023-06-15T14:30:00Z"},
		{name: "json number", raw: json.Number("1686839400"), want: "2023-06-15T14:30:00Z"},
		{name: "garbage", raw: "not a date", zero: true},
		{name: "empty", raw: "", zero: true},
		{name: "nil", raw: nil, zero: true},
		{name: "negative", raw: int64(-5), zero: true},
		{name: "unsupported type", raw: []string{"x"}, zero: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if tt.zero {
				assert.True(t, got.IsZero())
				return
			}
			require.False(t, got.IsZero())
			assert.Equal(t, tt.want, got.Format(time.RFC3339))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestWithinRangeClosedInterval(t *testing.T) {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)

	assert.True(t, WithinRange(start, start, end), "start boundary is inclusive")
	assert.True(t, WithinRange(end, start, end), "end boundary is inclusive")
	assert.True(t, WithinRange(start.AddDate(0, 0, 10), start, end))

	assert.False(t, WithinRange(start.Add(-time.Second), start, end))
	assert.False(t, WithinRange(end.Add(time.Second), start, end))
	assert.False(t, WithinRange(time.Time{}, start, end), "zero instant is never in range")
}

func TestWithinRangeOpenEnds(t *testing.T) {
	instant := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)

	assert.True(t, WithinRange(instant, time.Time{}, time.Time{}))
	assert.True(t, WithinRange(instant, time.Time{}, instant))
	assert.False(t, WithinRange(instant.Add(time.Second), time.Time{}, instant))
}
