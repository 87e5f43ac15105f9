package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"homewatch/internal/narrator"
)

// Format names for query and export output.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ParseFormat normalises a user-supplied format name.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, json or yaml)", s)
	}
}

// ============================================================================
// STRUCTURED EXPORT
// ============================================================================

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteYAML writes v as YAML using its JSON field names, so both exports share
// one schema.
func WriteYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("convert to yaml: %w", err)
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles inherited from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// ============================================================================
// TIMELINE TABLE
// ============================================================================

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	gapStyle    = lipgloss.NewStyle().Padding(0, 1).Italic(true).Foreground(lipgloss.Color("#888888"))
	alertStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#FF5F87"))
)

var timelineHeaders = []string{"Time (UTC)", "CPU", "Mem", "Disk", "Docker", "VPN", "Devices", "Traffic", "Alerts", "Errs", "Events"}

const alertsColumn = 8

// RenderTimeline draws narrator rows as a bordered table. Gap rows span the
// time column and leave the rest blank.
func RenderTimeline(rows []narrator.Row) string {
	if len(rows) == 0 {
		return "No snapshots recorded for this period.\n"
	}

	data := make([][]string, 0, len(rows))
	kinds := make([]narrator.RowKind, 0, len(rows))
	for _, r := range rows {
		data = append(data, timelineCells(r))
		kinds = append(kinds, r.Kind)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#383838"))).
		Headers(timelineHeaders...).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row < 0 || row >= len(kinds):
				return cellStyle
			case kinds[row] == narrator.RowGap:
				return gapStyle
			case col == alertsColumn && data[row][col] != "":
				return alertStyle
			}
			return cellStyle
		})
	return t.String() + "\n"
}

func timelineCells(r narrator.Row) []string {
	if r.Kind == narrator.RowGap && r.Gap != nil {
		cells := make([]string, len(timelineHeaders))
		cells[0] = fmt.Sprintf("… gap %s", narrator.FormatDuration(r.Gap.Duration))
		return cells
	}
	errs := ""
	if r.Errors > 0 {
		errs = strconv.Itoa(r.Errors)
	}
	return []string{
		r.Timestamp.UTC().Format("01-02 15:04"),
		r.CPU, r.Memory, r.Disk,
		r.Containers, r.VPN, r.Devices, r.Traffic,
		r.Alerts, errs,
		strings.Join(r.Events, ", "),
	}
}
