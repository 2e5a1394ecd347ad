// ABOUTME: Tests for waveform rendering
// ABOUTME: Tests min/max columns, empty rendering and frame limiting
package waveform

import (
	"testing"
	"time"
)

func TestRenderEmpty(t *testing.T) {
	r := NewRing(1024)
	d := r.Render(100, 40)

	if !d.Empty() {
		t.Errorf("got %d columns, want center line only", len(d.Columns))
	}
	if d.CenterY != 20 {
		t.Errorf("CenterY = %v, want 20", d.CenterY)
	}
}

func TestRenderMinMax(t *testing.T) {
	r := NewRing(8)
	r.Push([]float32{-1, 1, 0, 0, 0.5, 0.5, -0.5, 0})

	d := r.Render(4, 100)
	if len(d.Columns) != 4 {
		t.Fatalf("got %d columns, want 4", len(d.Columns))
	}

	tests := []struct {
		top, bottom float64
	}{
		{0, 100}, // -1..1
		{50, 50}, // 0..0
		{25, 25}, // 0.5..0.5
		{50, 75}, // -0.5..0
	}
	for i, tt := range tests {
		c := d.Columns[i]
		if c.X != i || c.YTop != tt.top || c.YBottom != tt.bottom {
			t.Errorf("column %d = %+v, want top %v bottom %v", i, c, tt.top, tt.bottom)
		}
	}
}

func TestRenderMoreColumnsThanSamples(t *testing.T) {
	r := NewRing(8)
	r.Push([]float32{1, -1})

	d := r.Render(6, 10)
	if len(d.Columns) != 6 {
		t.Fatalf("got %d columns, want 6", len(d.Columns))
	}
	for _, c := range d.Columns {
		if c.YTop > c.YBottom {
			t.Errorf("column %d inverted: %+v", c.X, c)
		}
	}
}

func TestRenderDoesNotMutate(t *testing.T) {
	r := NewRing(8)
	r.Push(seq(0, 5))

	_ = r.Render(3, 10)

	if r.Filled() != 5 {
		t.Errorf("Filled() = %d after Render", r.Filled())
	}
}

func TestRendererFrameLimit(t *testing.T) {
	r := NewRing(8)
	rd := NewRenderer(r, 10)
	start := time.Unix(0, 0)

	if _, ok := rd.Frame(start, 10, 10); !ok {
		t.Error("first frame not rendered")
	}
	if _, ok := rd.Frame(start.Add(50*time.Millisecond), 10, 10); ok {
		t.Error("frame rendered before interval elapsed")
	}
	if _, ok := rd.Frame(start.Add(100*time.Millisecond), 10, 10); !ok {
		t.Error("frame not rendered after interval")
	}
}
