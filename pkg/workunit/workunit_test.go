package workunit

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(seq func(func(Unit) bool)) []string {
	var out []string
	for u := range seq {
		out = append(out, u.Key())
	}
	return out
}

func TestDateRange(t *testing.T) {
	got := keys(DateRange(NewDate(2024, time.February, 27), NewDate(2024, time.March, 1)))
	assert.Equal(t, []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}, got)
}

func TestDateRangeEmptyWhenReversed(t *testing.T) {
	assert.Empty(t, keys(DateRange(NewDate(2024, 1, 2), NewDate(2024, 1, 1))))
}

func TestDateRangeStopsEarly(t *testing.T) {
	n := 0
	for range DateRange(NewDate(1952, 6, 18), NewDate(2024, 1, 1)) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestIDRange(t *testing.T) {
	assert.Equal(t, []string{"9", "10", "11"}, keys(IDRange(9, 11)))
}

func TestDateOfDropsClock(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2024, 5, 1, 23, 59, 0, 0, ist)
	assert.Equal(t, "2024-05-01", DateOf(now).Key())
}

func TestParse(t *testing.T) {
	u, err := Parse(KindDate, "1999-03-02")
	require.NoError(t, err)
	assert.Equal(t, NewDate(1999, 3, 2), u)

	u, err = Parse(KindID, "30000000")
	require.NoError(t, err)
	assert.Equal(t, ID(30000000), u)

	_, err = Parse(KindID, "abc")
	assert.Error(t, err)
	_, err = Parse(KindPath, "a/b")
	assert.Error(t, err)
}

func TestOrdering(t *testing.T) {
	assert.True(t, ID(2).Less(ID(10)), "ids order numerically, not lexically")
	assert.False(t, ID(10).Less(ID(2)))
	assert.True(t, NewDate(2024, 1, 9).Less(NewDate(2024, 1, 10)))

	a := Path{Segments: []string{"council", "z"}, Index: 0}
	b := Path{Segments: []string{"assembly", "a"}, Index: 1}
	assert.True(t, a.Less(b), "paths order by walk position")

	units := []Unit{ID(10), ID(2), ID(33)}
	Sort(units)
	assert.Equal(t, []Unit{ID(2), ID(10), ID(33)}, units)
}

func TestSlice(t *testing.T) {
	paths := []Path{
		{Segments: []string{"assembly", "term-1", "day-1"}},
		{Segments: []string{"assembly", "term-1", "day-2"}},
	}
	got := keys(Slice(paths))
	assert.True(t, slices.Equal([]string{"assembly/term-1/day-1", "assembly/term-1/day-2"}, got))
}
