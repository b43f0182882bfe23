package ingest

import (
	"strconv"
	"strings"
)

// Row — одна строка CSV в виде отображения "заголовок -> значение".
type Row map[string]string

// ExtractHeaders возвращает заголовки из первой строки CSV.
func ExtractHeaders(csvText string) []string {
	firstLine, _, _ := strings.Cut(csvText, "\n")
	parts := strings.Split(firstLine, ",")

	headers := make([]string, 0, len(parts))
	for _, part := range parts {
		headers = append(headers, stripQuotes(strings.TrimSpace(part)))
	}
	return headers
}

// Parse разбирает CSV-текст в заголовки и строки данных.
// Строки, в которых число полей не совпадает с числом заголовков,
// молча отбрасываются — это контракт формата, а не ошибка.
func Parse(csvText string) ([]string, []Row) {
	lines := strings.Split(strings.TrimSpace(csvText), "\n")
	if len(lines) < 2 {
		return ExtractHeaders(csvText), nil
	}

	headers := ExtractHeaders(lines[0])
	rows := make([]Row, 0, len(lines)-1)

	for _, line := range lines[1:] {
		values := splitLine(line)
		if len(values) != len(headers) {
			continue
		}

		row := make(Row, len(headers))
		for i, header := range headers {
			row[header] = values[i]
		}
		rows = append(rows, row)
	}

	return headers, rows
}

// splitLine делит строку по запятым, трактуя двойную кавычку как
// переключатель режима "внутри поля в кавычках".
func splitLine(line string) []string {
	values := make([]string, 0, 8)
	var current strings.Builder
	inQuotes := false

	for _, char := range line {
		switch {
		case char == '"':
			inQuotes = !inQuotes
		case char == ',' && !inQuotes:
			values = append(values, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(char)
		}
	}

	values = append(values, strings.TrimSpace(current.String()))
	return values
}

func stripQuotes(value string) string {
	value = strings.TrimPrefix(value, `"`)
	return strings.TrimSuffix(value, `"`)
}

// ParseAmount разбирает денежное значение, убирая символ валюты и
// разделители тысяч. Неразборчивое значение дает 0.
func ParseAmount(value string) float64 {
	parsed, ok := parseMoney(value)
	if !ok {
		return 0
	}
	return parsed
}

// ParseOptionalAmount возвращает nil для пустого или неразборчивого значения.
func ParseOptionalAmount(value string) *float64 {
	parsed, ok := parseMoney(value)
	if !ok {
		return nil
	}
	return &parsed
}

func parseMoney(value string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(value))
	if cleaned == "" {
		return 0, false
	}

	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// ParseQuantity разбирает количество; по умолчанию 1.
func ParseQuantity(value string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 1
	}
	return parsed
}
