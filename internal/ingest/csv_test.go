package ingest

import "testing"

// TestParseQuotedFields проверяет запятые внутри кавычек.
func TestParseQuotedFields(t *testing.T) {
	csvText := "Description,Amount\n\"Office visit, established patient\",$385.00\n"

	headers, rows := Parse(csvText)
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["Description"] != "Office visit, established patient" {
		t.Fatalf("unexpected description: %q", rows[0]["Description"])
	}
}

// TestParseDropsMismatchedRows проверяет отбрасывание строк с другим числом полей.
func TestParseDropsMismatchedRows(t *testing.T) {
	csvText := "a,b,c\n1,2,3\n1,2\n4,5,6\n1,2,3,4\n"

	_, rows := Parse(csvText)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1]["c"] != "6" {
		t.Fatalf("unexpected value: %q", rows[1]["c"])
	}
}

// TestParseNoDataRows проверяет CSV только с заголовком.
func TestParseNoDataRows(t *testing.T) {
	headers, rows := Parse("a,b,c")
	if len(headers) != 3 {
		t.Fatalf("expected 3 headers, got %d", len(headers))
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

// TestExtractHeadersStripsQuotes проверяет снятие кавычек с заголовков.
func TestExtractHeadersStripsQuotes(t *testing.T) {
	headers := ExtractHeaders("\"Service Code\",\"Billed Amount\",Date\nrest")
	if headers[0] != "Service Code" || headers[1] != "Billed Amount" || headers[2] != "Date" {
		t.Fatalf("unexpected headers: %v", headers)
	}
}

// TestParseAmount проверяет разбор денежных значений.
func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"$1,234.50", 1234.50},
		{"385.00", 385},
		{"  $95 ", 95},
		{"n/a", 0},
		{"", 0},
	}

	for _, tc := range cases {
		if got := ParseAmount(tc.in); got != tc.want {
			t.Fatalf("ParseAmount(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// TestParseOptionalAmount проверяет nil для неразборчивых значений.
func TestParseOptionalAmount(t *testing.T) {
	if got := ParseOptionalAmount(""); got != nil {
		t.Fatalf("expected nil, got %v", *got)
	}
	if got := ParseOptionalAmount("abc"); got != nil {
		t.Fatalf("expected nil, got %v", *got)
	}

	got := ParseOptionalAmount("$12.00")
	if got == nil || *got != 12 {
		t.Fatalf("expected 12, got %v", got)
	}
}

// TestParseQuantity проверяет количество по умолчанию.
func TestParseQuantity(t *testing.T) {
	if got := ParseQuantity("3"); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := ParseQuantity(""); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := ParseQuantity("-2"); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}
