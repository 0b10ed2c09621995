package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestResolveExactAndPrior(t *testing.T) {
	cal := New([]time.Time{
		d(2024, 12, 27), d(2024, 12, 30), d(2024, 12, 31),
	})

	got, err := cal.Resolve(d(2024, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, d(2024, 12, 31), got, "open day resolves to itself")

	// 2024-12-29 is a Sunday; nearest prior open day is the 27th.
	got, err = cal.Resolve(d(2024, 12, 29))
	require.NoError(t, err)
	assert.Equal(t, d(2024, 12, 27), got)
}

func TestResolveBeforeCalendar(t *testing.T) {
	cal := New([]time.Time{d(2024, 1, 2)})
	_, err := cal.Resolve(d(2023, 12, 31))
	require.ErrorIs(t, err, ErrNoPriorTradeDate)
}

func TestResolveAllStopsOnError(t *testing.T) {
	cal := New([]time.Time{d(2024, 1, 2), d(2024, 1, 3)})

	out, err := cal.ResolveAll([]time.Time{d(2024, 1, 5), d(2024, 1, 2)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d(2024, 1, 3), d(2024, 1, 2)}, out)

	_, err = cal.ResolveAll([]time.Time{d(2024, 1, 5), d(2023, 6, 1)})
	require.ErrorIs(t, err, ErrNoPriorTradeDate)
}

func TestNewSortsInput(t *testing.T) {
	cal := New([]time.Time{d(2024, 3, 1), d(2024, 1, 2), d(2024, 2, 1)})
	got, err := cal.Resolve(d(2024, 2, 15))
	require.NoError(t, err)
	assert.Equal(t, d(2024, 2, 1), got)
	assert.Equal(t, 3, cal.Len())
}
