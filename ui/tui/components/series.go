package components

import (
	"homewatch/ui/tui/styles"

	"github.com/NimbleMarkets/ntcharts/canvas"
	"github.com/NimbleMarkets/ntcharts/linechart"
	"github.com/charmbracelet/lipgloss"
)

// SeriesCapacity is the number of points a SeriesWidget keeps.
const SeriesCapacity = 31

var _ Chart = (*SeriesWidget)(nil)

// SeriesWidget charts the last SeriesCapacity values of one metric.
type SeriesWidget struct {
	Title   string
	Chart   linechart.Model
	History []float64
	Width   int
	Height  int

	maxY float64
	auto bool
}

// NewSeriesWidget charts values between 0 and maxY. A maxY of 0 scales to the
// largest value seen.
func NewSeriesWidget(title string, width, height int, maxY float64) *SeriesWidget {
	auto := maxY <= 0
	if auto {
		maxY = 1
	}
	// width, height, minX, maxX, minY, maxY
	lc := linechart.New(width, height, 0, SeriesCapacity-1, 0, maxY)
	return &SeriesWidget{
		Title:   title,
		Chart:   lc,
		History: make([]float64, 0, SeriesCapacity),
		Width:   width,
		Height:  height,
		maxY:    maxY,
		auto:    auto,
	}
}

func (c *SeriesWidget) Push(value float64) {
	c.History = append(c.History, value)
	if len(c.History) > SeriesCapacity {
		c.History = c.History[1:]
	}
	if c.auto && value > c.maxY {
		c.maxY = value * 1.2
		c.Chart = linechart.New(c.Width, c.Height, 0, SeriesCapacity-1, 0, c.maxY)
	}
}

// Reset drops all points.
func (c *SeriesWidget) Reset() {
	c.History = c.History[:0]
}

// Values returns the retained points, oldest first.
func (c *SeriesWidget) Values() []float64 {
	return c.History
}

func (c *SeriesWidget) Resize(w, h int) {
	c.Width = w
	c.Height = h
	c.Chart.Resize(w, h)
}

// Plot redraws the chart and returns it without a frame.
func (c *SeriesWidget) Plot() string {
	c.Chart.Clear()
	for i := 0; i < len(c.History)-1; i++ {
		y1 := c.History[i]
		y2 := c.History[i+1]
		c.Chart.DrawBrailleLine(
			canvas.Float64Point{X: float64(i), Y: y1},
			canvas.Float64Point{X: float64(i + 1), Y: y2},
		)
	}
	c.Chart.DrawXYAxisAndLabel()
	return c.Chart.View()
}

func (c *SeriesWidget) View() string {
	return styles.CardStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.NewStyle().Bold(true).Render(c.Title),
			c.Plot(),
		),
	)
}
