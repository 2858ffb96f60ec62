package dashboard

import (
	"strings"

	"chemviz/internal/models"
)

// NoMatchesPlaceholder is the single table row shown when a report is loaded
// but the search term matches none of its rows.
const NoMatchesPlaceholder = "No matching equipment found."

// Filter returns the rows whose name or type contains term, ignoring case.
// An empty term keeps every row. The input is never modified.
func Filter(rows []models.EquipmentRow, term string) []models.EquipmentRow {
	out := make([]models.EquipmentRow, 0, len(rows))
	if term == "" {
		return append(out, rows...)
	}

	needle := strings.ToLower(term)
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.Name), needle) ||
			strings.Contains(strings.ToLower(row.Type), needle) {
			out = append(out, row)
		}
	}
	return out
}
