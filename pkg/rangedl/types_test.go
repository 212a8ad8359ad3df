// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

import "testing"

func TestPlanSegmentsCoversWholeFileNoGapsNoOverlap(t *testing.T) {
	cases := []struct {
		size int64
		n    int
	}{
		{0, 4}, {1, 4}, {7, 3}, {100, 1}, {100, 3}, {100, 7}, {1023, 10}, {1024, 10},
	}
	for _, c := range cases {
		plans := planSegments(c.size, c.n)
		if c.size <= 0 {
			if len(plans) != 1 || !plans[0].Unbounded() {
				t.Fatalf("size %d: expected one unbounded segment, got %+v", c.size, plans)
			}
			continue
		}
		var covered int64
		for i, p := range plans {
			if p.Index != i {
				t.Fatalf("plan %d has Index %d", i, p.Index)
			}
			if p.Start > p.End+1 {
				t.Fatalf("plan %d: start %d > end+1 %d", i, p.Start, p.End+1)
			}
			if i > 0 && p.Start != plans[i-1].End+1 {
				t.Fatalf("gap/overlap between segment %d and %d: %+v %+v", i-1, i, plans[i-1], p)
			}
			covered += p.Size()
		}
		if plans[0].Start != 0 {
			t.Fatalf("size %d n %d: first segment does not start at 0: %+v", c.size, c.n, plans[0])
		}
		if plans[len(plans)-1].End != c.size-1 {
			t.Fatalf("size %d n %d: last segment does not end at size-1: %+v", c.size, c.n, plans[len(plans)-1])
		}
		if covered != c.size {
			t.Fatalf("size %d n %d: segments cover %d bytes, want %d", c.size, c.n, covered, c.size)
		}
	}
}

func TestClampThreadCount(t *testing.T) {
	cases := []struct{ n, max, want int }{
		{0, 10, 1}, {-5, 10, 1}, {1, 10, 1}, {10, 10, 10}, {20, 10, 10}, {3, 3, 3},
	}
	for _, c := range cases {
		if got := clampThreadCount(c.n, c.max); got != c.want {
			t.Errorf("clampThreadCount(%d, %d) = %d, want %d", c.n, c.max, got, c.want)
		}
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.MaxThreadCount != 10 || o.MaxRedirects != 5 {
		t.Fatalf("withDefaults() = %+v, want MaxThreadCount=10 MaxRedirects=5", o)
	}
}

func TestSegmentPlanSize(t *testing.T) {
	if s := (SegmentPlan{Start: 0, End: -1}).Size(); s != -1 {
		t.Errorf("unbounded Size() = %d, want -1", s)
	}
	if s := (SegmentPlan{Start: 10, End: 19}).Size(); s != 10 {
		t.Errorf("Size() = %d, want 10", s)
	}
}
