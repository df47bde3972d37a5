package services

import (
	"testing"

	"github.com/detectdash/client/models"
)

func makeDetections(n int) []models.Detection {
	dets := make([]models.Detection, n)
	for i := range dets {
		dets[i] = models.Detection{Frame: i, Confidence: 0.87, BBox: [4]float64{1, 2, 3, 4}}
	}
	return dets
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		n, size, want int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{9, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{15, 10, 2},
		{20, 10, 2},
		{21, 10, 3},
		{7, 3, 3},
		{5, 0, 1},
	}

	for _, tt := range tests {
		if got := TotalPages(tt.n, tt.size); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.n, tt.size, got, tt.want)
		}
	}
}

func TestPageSliceLengths(t *testing.T) {
	const p = DefaultPageSize
	for n := 0; n <= 35; n++ {
		items := makeDetections(n)
		total := TotalPages(n, p)
		for k := -1; k <= total+2; k++ {
			want := 0
			if k >= 1 && k <= total {
				want = min(p, n-(k-1)*p)
			}
			got := PageSlice(items, k, p)
			if len(got) != want {
				t.Fatalf("n=%d k=%d: len = %d, want %d", n, k, len(got), want)
			}
			if want > 0 && got[0].Frame != (k-1)*p {
				t.Fatalf("n=%d k=%d: first frame = %d, want %d", n, k, got[0].Frame, (k-1)*p)
			}
		}
	}
}

func TestPaginateFifteenDetections(t *testing.T) {
	items := makeDetections(15)

	first := Paginate(items, 1, DefaultPageSize)
	if first.TotalPages != 2 {
		t.Fatalf("TotalPages = %d, want 2", first.TotalPages)
	}
	if len(first.Items) != 10 || first.Items[0].Frame != 0 || first.Items[9].Frame != 9 {
		t.Errorf("page 1 = frames %v, want 0..9", frames(first.Items))
	}
	if first.HasPrev || !first.HasNext {
		t.Errorf("page 1 HasPrev=%v HasNext=%v", first.HasPrev, first.HasNext)
	}

	second := Paginate(items, 2, DefaultPageSize)
	if len(second.Items) != 5 || second.Items[0].Frame != 10 || second.Items[4].Frame != 14 {
		t.Errorf("page 2 = frames %v, want 10..14", frames(second.Items))
	}
	if !second.HasPrev || second.HasNext {
		t.Errorf("page 2 HasPrev=%v HasNext=%v", second.HasPrev, second.HasNext)
	}
}

func TestPaginateClampsOutOfRange(t *testing.T) {
	items := makeDetections(15)
	tests := []struct {
		name string
		page int
		want int
	}{
		{"zero", 0, 1},
		{"negative", -4, 1},
		{"past end", 9, 2},
		{"in range", 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Paginate(items, tt.page, DefaultPageSize).Page; got != tt.want {
				t.Errorf("Paginate(page=%d).Page = %d, want %d", tt.page, got, tt.want)
			}
		})
	}

	empty := Paginate(nil, 3, DefaultPageSize)
	if empty.Page != 1 || empty.TotalPages != 1 || len(empty.Items) != 0 {
		t.Errorf("empty view = %+v", empty)
	}
}

func TestNextPrevSaturate(t *testing.T) {
	if got := PrevPage(1, 3); got != 1 {
		t.Errorf("PrevPage(1, 3) = %d, want 1", got)
	}
	if got := NextPage(3, 3); got != 3 {
		t.Errorf("NextPage(3, 3) = %d, want 3", got)
	}
	if got := NextPage(1, 3); got != 2 {
		t.Errorf("NextPage(1, 3) = %d, want 2", got)
	}
	if got := PrevPage(3, 3); got != 2 {
		t.Errorf("PrevPage(3, 3) = %d, want 2", got)
	}
	if got := NextPage(1, 0); got != 1 {
		t.Errorf("NextPage(1, 0) = %d, want 1", got)
	}
}

func TestPaginateDoesNotMutateInput(t *testing.T) {
	items := makeDetections(12)
	pv := Paginate(items, 1, DefaultPageSize)
	_ = append(pv.Items, models.Detection{Frame: 999})
	if items[10].Frame != 10 {
		t.Errorf("appending to a page overwrote the source list: frame = %d", items[10].Frame)
	}
}

func frames(dets []models.Detection) []int {
	out := make([]int, len(dets))
	for i, d := range dets {
		out[i] = d.Frame
	}
	return out
}
