package components

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeriesWidgetKeepsLastCapacityValues(t *testing.T) {
	var c Chart = NewSeriesWidget("CPU %", 30, 10, 100)
	for i := 0; i < SeriesCapacity+5; i++ {
		c.Push(float64(i))
	}
	got := c.Values()
	assert.Len(t, got, SeriesCapacity)
	assert.Equal(t, 5.0, got[0])
	assert.Equal(t, float64(SeriesCapacity+4), got[len(got)-1])

	c.Reset()
	assert.Empty(t, c.Values())
}

func TestSeriesWidgetScaling(t *testing.T) {
	tests := []struct {
		name     string
		maxY     float64
		push     []float64
		wantMaxY float64
	}{
		{name: "fixed range ignores large values", maxY: 100, push: []float64{20, 250}, wantMaxY: 100},
		{name: "auto range grows with headroom", maxY: 0, push: []float64{4, 10}, wantMaxY: 12},
		{name: "auto range never shrinks", maxY: 0, push: []float64{10, 2}, wantMaxY: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewSeriesWidget("s", 30, 10, tt.maxY)
			for _, v := range tt.push {
				w.Push(v)
			}
			assert.InDelta(t, tt.wantMaxY, w.maxY, 1e-9)
		})
	}
}

func TestSeriesWidgetViewCarriesTitle(t *testing.T) {
	var c Chart = NewSeriesWidget("Devices", 30, 10, 0)
	c.Push(3)
	c.Push(5)
	c.Resize(40, 8)
	assert.Contains(t, c.View(), "Devices")
}
