package views

import (
	"homewatch/ui/tui/state"
)

func RenderMenu(s state.AppState, width, height, cursor int, animCursor float64, mouseX, mouseY int) string {
	v := MenuView{}
	return v.Render(s, ViewProps{
		Width:      width,
		Height:     height,
		MenuCursor: cursor,
		AnimCursor: animCursor,
		MouseX:     mouseX,
		MouseY:     mouseY,
	})
}

func RenderDashboard(s state.AppState, spinnerView, chartView, countChart string, width int) string {
	v := DashboardView{}
	return v.Render(s, ViewProps{
		Width:       width,
		SpinnerView: spinnerView,
		ChartView:   chartView,
		CountChart:  countChart,
	})
}

func RenderScroll(s state.AppState, title, viewportView string, scrollPercent float64, width, height int) string {
	v := ScrollView{Title: title}
	return v.Render(s, ViewProps{
		Width:         width,
		Height:        height,
		ViewportView:  viewportView,
		ScrollPercent: scrollPercent,
	})
}

func RenderAnomalies(s state.AppState, width, height int) string {
	v := AnomaliesView{}
	return v.Render(s, ViewProps{Width: width, Height: height})
}

func RenderNetwork(s state.AppState, width, height int) string {
	v := NetworkView{}
	return v.Render(s, ViewProps{Width: width, Height: height})
}
