package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCourseRanges(t *testing.T) {
	ranges, err := ParseCourseRanges(" 7-12, 4 ")
	require.NoError(t, err)
	assert.Equal(t, CourseRanges{{Min: 4, Max: 4}, {Min: 7, Max: 12}}, ranges)
	assert.Equal(t, "4,7-12", ranges.String())
	assert.True(t, ranges.Contains(4))
	assert.False(t, ranges.Contains(5))
	assert.True(t, ranges.Contains(12))

	_, err = ParseCourseRanges("12-4")
	assert.Error(t, err)
	_, err = ParseCourseRanges("x-4")
	assert.Error(t, err)

	empty, err := ParseCourseRanges("")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestCourseRangesScan(t *testing.T) {
	var rs CourseRanges
	require.NoError(t, rs.Scan([]byte("3-12")))
	assert.Equal(t, CourseRanges{{Min: 3, Max: 12}}, rs)
	require.NoError(t, rs.Scan(nil))
	assert.Nil(t, rs)

	v, err := CourseRanges{{Min: 1, Max: 6}}.Value()
	require.NoError(t, err)
	assert.Equal(t, "1-6", v)
}

func TestCallOpen(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	call := Call{StartsAt: start, EndsAt: start.Add(48 * time.Hour), Active: true}
	assert.False(t, call.Open(start.Add(-time.Second)))
	assert.True(t, call.Open(start))
	assert.True(t, call.Open(start.Add(48*time.Hour)))
	assert.False(t, call.Open(start.Add(49*time.Hour)))

	call.Active = false
	assert.False(t, call.Open(start.Add(time.Hour)))
}
