package bump_test

import (
	"context"
	"testing"

	"github.com/joeycumines/dauphin/bump"
	"github.com/stretchr/testify/require"
)

func TestBumpPlacesNonOverlappingIntervalsInOneRow(t *testing.T) {
	requests := []bump.BumpRequest{
		{Name: "a", Index: 0, Interval: bump.Interval{Start: 0, End: 10}, Height: 1, Extent: bump.RangeAllExtent()},
		{Name: "b", Index: 1, Interval: bump.Interval{Start: 10, End: 20}, Height: 1, Extent: bump.RangeAllExtent()},
	}
	result, err := bump.Bump(context.Background(), requests, 1, false, 0)
	require.NoError(t, err)
	require.Len(t, result.Offsets, 2)
	for _, off := range result.Offsets {
		require.Equal(t, 0, off.Row)
	}
	require.Equal(t, 1.0, result.TotalHeight)
}

func TestBumpStacksOverlappingIntervalsIntoSeparateRows(t *testing.T) {
	requests := []bump.BumpRequest{
		{Name: "a", Index: 0, Interval: bump.Interval{Start: 0, End: 10}, Height: 1, Extent: bump.RangeAllExtent()},
		{Name: "b", Index: 1, Interval: bump.Interval{Start: 5, End: 15}, Height: 1, Extent: bump.RangeAllExtent()},
	}
	result, err := bump.Bump(context.Background(), requests, 2, false, 0)
	require.NoError(t, err)

	rows := map[string]int{}
	for _, off := range result.Offsets {
		rows[off.Name] = off.Row
	}
	require.NotEqual(t, rows["a"], rows["b"])
	require.Equal(t, 4.0, result.TotalHeight)
}

func TestBumpTieBreaksByInsertionOrder(t *testing.T) {
	requests := []bump.BumpRequest{
		{Name: "second", Index: 1, Interval: bump.Interval{Start: 0, End: 10}, Height: 1, Extent: bump.RangeAllExtent()},
		{Name: "first", Index: 0, Interval: bump.Interval{Start: 0, End: 10}, Height: 1, Extent: bump.RangeAllExtent()},
	}
	result, err := bump.Bump(context.Background(), requests, 1, false, 0)
	require.NoError(t, err)

	byName := map[string]bump.Offset{}
	for _, off := range result.Offsets {
		byName[off.Name] = off
	}
	require.Equal(t, 0, byName["first"].Row)
	require.Equal(t, 1, byName["second"].Row)
}

func TestBumpRangeNoneNeverCollides(t *testing.T) {
	requests := []bump.BumpRequest{
		{Name: "a", Index: 0, Interval: bump.Interval{Start: 0, End: 100}, Height: 1, Extent: bump.RangeAllExtent()},
		{Name: "b", Index: 1, Interval: bump.Interval{Start: 50, End: 50}, Height: 1, Extent: bump.RangeNoneExtent()},
	}
	result, err := bump.Bump(context.Background(), requests, 1, false, 0)
	require.NoError(t, err)

	rows := map[string]int{}
	for _, off := range result.Offsets {
		rows[off.Name] = off.Row
	}
	require.Equal(t, 0, rows["a"])
	require.Equal(t, 0, rows["b"])
}

func TestBumpWallModeUsesPerRowHeight(t *testing.T) {
	requests := []bump.BumpRequest{
		{Name: "tall", Index: 0, Interval: bump.Interval{Start: 0, End: 10}, Height: 5, Extent: bump.RangeAllExtent()},
		{Name: "short", Index: 1, Interval: bump.Interval{Start: 0, End: 10}, Height: 1, Extent: bump.RangeAllExtent()},
	}
	result, err := bump.Bump(context.Background(), requests, 0, true, 0)
	require.NoError(t, err)
	require.Equal(t, 6.0, result.TotalHeight)

	byName := map[string]bump.Offset{}
	for _, off := range result.Offsets {
		byName[off.Name] = off
	}
	require.Equal(t, 0.0, byName["tall"].Y)
	require.Equal(t, 5.0, byName["short"].Y)
}

func TestBumpBaseOffsetShiftsWholePack(t *testing.T) {
	requests := []bump.BumpRequest{
		{Name: "a", Index: 0, Interval: bump.Interval{Start: 0, End: 10}, Height: 1, Extent: bump.RangeAllExtent()},
	}
	result, err := bump.Bump(context.Background(), requests, 2, false, 10)
	require.NoError(t, err)
	require.Equal(t, 10.0, result.Offsets[0].Y)
	require.Equal(t, 12.0, result.TotalHeight)
}

func TestUniformRowCountMatchesCeilingFormula(t *testing.T) {
	require.Equal(t, 2, bump.UniformRowCount(15, 10))
	require.Equal(t, 1, bump.UniformRowCount(10, 10))
	require.Equal(t, 0, bump.UniformRowCount(10, 0))
}

func TestBumperCachesStableInputs(t *testing.T) {
	b := bump.NewBumper()
	requests := []bump.BumpRequest{
		{Name: "a", Index: 0, Interval: bump.Interval{Start: 0, End: 10}, Height: 1, Extent: bump.RangeAllExtent()},
	}
	first, err := b.Bump(context.Background(), "persist-key", requests, 1, false, 0)
	require.NoError(t, err)

	second, err := b.Bump(context.Background(), "persist-key", requests, 1, false, 0)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBumperRecomputesWhenInputsChange(t *testing.T) {
	b := bump.NewBumper()
	requests := []bump.BumpRequest{
		{Name: "a", Index: 0, Interval: bump.Interval{Start: 0, End: 10}, Height: 1, Extent: bump.RangeAllExtent()},
	}
	first, err := b.Bump(context.Background(), "persist-key", requests, 1, false, 0)
	require.NoError(t, err)

	requests[0].Height = 9
	second, err := b.Bump(context.Background(), "persist-key", requests, 1, false, 0)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
