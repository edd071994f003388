package sched

import (
	"testing"
	"time"

	"fieldsched/internal/model"
)

func TestCalcWindowsAroundFixedUnits(t *testing.T) {
	dayStart, dayEnd := at(1, 8, 0), at(1, 18, 0)
	fixed := []model.Unit{
		fixedUnit("a", 1, time.Hour, at(1, 10, 0)),
		fixedUnit("b", 2, 2*time.Hour, at(1, 14, 0)),
	}
	windows := CalcWindows(fixed, dayStart, dayEnd, loc(0))
	if len(windows) != 3 {
		t.Fatalf("windows: got %d, want 3 (%+v)", len(windows), windows)
	}
	checks := []struct {
		start, end time.Time
		beforeIdx  int
	}{
		{dayStart, at(1, 10, 0), 0},
		{at(1, 11, 0), at(1, 14, 0), 1},
		{at(1, 16, 0), dayEnd, 2},
	}
	for i, c := range checks {
		w := windows[i]
		if !w.Start.Equal(c.start) || !w.End.Equal(c.end) || w.Before.Index != c.beforeIdx {
			t.Fatalf("window %d: got %v-%v before %d, want %v-%v before %d",
				i, w.Start, w.End, w.Before.Index, c.start, c.end, c.beforeIdx)
		}
	}
}

func TestCalcWindowsSkipsConflictingFixed(t *testing.T) {
	dayStart, dayEnd := at(1, 8, 0), at(1, 18, 0)
	fixed := []model.Unit{
		fixedUnit("first", 1, 2*time.Hour, at(1, 9, 0)),
		// overlaps the first, must be ignored without moving the cursor
		fixedUnit("clash", 2, time.Hour, at(1, 10, 0)),
		// runs past the end of day
		fixedUnit("overrun", 3, 2*time.Hour, at(1, 17, 0)),
	}
	windows, placed := placeFixed(fixed, dayStart, dayEnd, loc(0))
	if len(placed) != 1 || placed[0].ID != "first" {
		t.Fatalf("placed: got %+v, want [first]", placed)
	}
	if len(windows) != 2 {
		t.Fatalf("windows: got %d, want 2 (%+v)", len(windows), windows)
	}
	if !windows[1].Start.Equal(at(1, 11, 0)) || !windows[1].End.Equal(dayEnd) {
		t.Fatalf("tail window: got %v-%v", windows[1].Start, windows[1].End)
	}
}

func TestFillWindowsConsumesCapacity(t *testing.T) {
	windows := []model.Window{
		{Start: at(1, 8, 0), End: at(1, 10, 0), Before: loc(0)},
		{Start: at(1, 12, 0), End: at(1, 18, 0), Before: loc(1)},
	}
	dynamic := []model.Unit{
		dynUnit("u1", 1, 90*time.Minute, 1),
		dynUnit("u2", 2, time.Hour, 2), // 30 min left in first window, goes to second
		dynUnit("u3", 3, 6*time.Hour, 3),
	}
	placed, remaining := fillWindows(dynamic, windows)
	if len(placed) != 2 {
		t.Fatalf("placed: got %+v, want [u1 u2]", placed)
	}
	if len(remaining) != 1 || remaining[0].ID != "u3" {
		t.Fatalf("remaining: got %+v, want [u3]", remaining)
	}
}
