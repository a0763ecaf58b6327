package rowset

import (
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Markdown renders the set as a markdown table. An empty set renders as "".
func (s *Set) Markdown() string {
	if s.Len() == 0 || len(s.Columns) == 0 {
		return ""
	}

	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetHeader(s.Columns)

	for _, row := range s.Rows {
		cells := make([]string, len(s.Columns))
		for i, col := range s.Columns {
			cells[i] = markdownCell(FormatValue(row[col]))
		}
		table.Append(cells)
	}
	table.Render()

	return strings.TrimRight(sb.String(), "\n")
}

func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// IsPlaceholderTable reports whether a rendered markdown table carries no data: it is blank,
// has a header but no body, or every body cell is empty, null, "None" or "nan".
func IsPlaceholderTable(table string) bool {
	var body [][]string
	header := true
	for _, line := range strings.Split(table, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || IsSeparatorLine(line) {
			continue
		}
		if header {
			header = false
			continue
		}
		body = append(body, splitCells(line))
	}
	if len(body) == 0 {
		return true
	}
	for _, cells := range body {
		for _, c := range cells {
			if !isPlaceholderCell(c) {
				return false
			}
		}
	}
	return true
}

// IsSeparatorLine reports whether line is a markdown header separator such as |---|:--:|.
func IsSeparatorLine(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "-") {
		return false
	}
	for _, r := range line {
		switch r {
		case '-', '|', ':', '+', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

func splitCells(line string) []string {
	line = strings.TrimPrefix(strings.TrimSuffix(line, "|"), "|")
	parts := strings.Split(line, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
