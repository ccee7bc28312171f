package report

import (
	"strings"
)

// formulaPrefixes start cells that spreadsheet applications evaluate.
var formulaPrefixes = []string{"=", "+", "-", "@", "|", "%", "\t", "\r", "\n"}

// EscapeCSVCell protects against CSV formula injection by quoting cells
// that start with a formula character. Seller and product names come from
// the marketplace and are untrusted.
func EscapeCSVCell(value string) string {
	for _, p := range formulaPrefixes {
		if strings.HasPrefix(value, p) {
			return "'" + value
		}
	}
	return value
}

// EscapeCSVRow escapes all cells in a row
func EscapeCSVRow(row []string) []string {
	escaped := make([]string, len(row))
	for i, cell := range row {
		escaped[i] = EscapeCSVCell(cell)
	}
	return escaped
}
