package components

// Chart is a rolling history widget the dashboard feeds one value per
// snapshot. The model only holds charts through this interface.
type Chart interface {
	Push(value float64)
	Reset()
	Resize(w, h int)
	Values() []float64
	View() string
}
