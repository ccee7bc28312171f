package report

import (
	"reflect"
	"testing"
)

func TestEscapeCSVCell(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"normal_text", "Apple iPhone 15 128Gb", "Apple iPhone 15 128Gb"},
		{"number", "123.45", "123.45"},
		{"safe_special", "#1 Store", "#1 Store"},
		{"internal_equal", "A=B", "A=B"},

		{"formula_equal", "=SUM(A1:A10)", "'=SUM(A1:A10)"},
		{"formula_plus", "+123", "'+123"},
		{"formula_minus", "-123", "'-123"},
		{"formula_at", "@SUM(A:A)", "'@SUM(A:A)"},
		{"formula_pipe", "|echo test", "'|echo test"},
		{"formula_percent", "%PATH%", "'%PATH%"},

		{"tab_start", "\t=EXEC()", "'\t=EXEC()"},
		{"newline_start", "\n=FORMULA()", "'\n=FORMULA()"},
		{"carriage_return", "\r=DATA()", "'\r=DATA()"},

		{"negative_delta", "-2.5", "'-2.5"},
		{"seller_handle", "@shop_kz", "'@shop_kz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EscapeCSVCell(tt.input)
			if result != tt.expected {
				t.Errorf("EscapeCSVCell(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestEscapeCSVRow(t *testing.T) {
	input := []string{"Header1", "=FORMULA", "+123", "Normal"}
	expected := []string{"Header1", "'=FORMULA", "'+123", "Normal"}

	result := EscapeCSVRow(input)

	if !reflect.DeepEqual(result, expected) {
		t.Errorf("EscapeCSVRow() = %q, want %q", result, expected)
	}
}

func BenchmarkEscapeCSVRow(b *testing.B) {
	row := []string{
		"Technodom",
		"3",
		"459990.00",
		"=FORMULA()",
		"4.8",
		"+50.00",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = EscapeCSVRow(row)
	}
}
