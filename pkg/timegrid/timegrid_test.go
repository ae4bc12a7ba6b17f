package timegrid

import "testing"

func TestCeilFloor(t *testing.T) {
	cases := []struct {
		ts, interval, wantCeil, wantFloor int64
	}{
		{0, 1000, 0, 0},
		{1, 1000, 1000, 0},
		{999, 1000, 1000, 0},
		{1000, 1000, 1000, 1000},
		{1001, 1000, 2000, 1000},
		{-1, 1000, 0, -1000},
	}
	for _, tc := range cases {
		if got := Ceil(tc.ts, tc.interval); got != tc.wantCeil {
			t.Errorf("Ceil(%d,%d) = %d, want %d", tc.ts, tc.interval, got, tc.wantCeil)
		}
		if got := Floor(tc.ts, tc.interval); got != tc.wantFloor {
			t.Errorf("Floor(%d,%d) = %d, want %d", tc.ts, tc.interval, got, tc.wantFloor)
		}
	}
}

// R3: ceil(floor(ts,i),i) = floor(ts,i); ceil(ts+i,i) = ceil(ts,i)+i.
func TestCeilFloorLaws(t *testing.T) {
	interval := int64(60_000)
	for _, ts := range []int64{0, 1, 59_999, 60_000, 60_001, 123_456_789, -1, -60_001} {
		f := Floor(ts, interval)
		if got := Ceil(f, interval); got != f {
			t.Errorf("ceil(floor(%d)) = %d, want %d", ts, got, f)
		}
		c := Ceil(ts, interval)
		if got := Ceil(ts+interval, interval); got != c+interval {
			t.Errorf("ceil(%d+i) = %d, want %d", ts, got, c+interval)
		}
	}
}

func TestCreateGrid(t *testing.T) {
	grid, err := CreateGrid(0, 3000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{0, 1000, 2000, 3000}
	if len(grid) != len(want) {
		t.Fatalf("len(grid) = %d, want %d", len(grid), len(want))
	}
	for i := range want {
		if grid[i] != want[i] {
			t.Errorf("grid[%d] = %d, want %d", i, grid[i], want[i])
		}
	}
}

func TestCreateGridInvalid(t *testing.T) {
	if _, err := CreateGrid(1000, 0, 1000); err == nil {
		t.Fatal("expected error for end < start")
	}
	if _, err := CreateGrid(0, 1500, 1000); err == nil {
		t.Fatal("expected error for non-divisible range")
	}
}
