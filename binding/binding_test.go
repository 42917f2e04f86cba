package binding

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func TestLookup(t *testing.T) {
	var record map[string]any
	if err := json.Unmarshal([]byte(`{
		"title": "Golf GTI",
		"price": 149999.6,
		"images": ["a.png", "b.png"],
		"agent": {"name": "Thabo", "phones": ["082", "083"]}
	}`), &record); err != nil {
		t.Fatal(err)
	}

	cases := map[string]any{
		"title":            "Golf GTI",
		"price":            149999.6,
		"images[1]":        "b.png",
		"agent.name":       "Thabo",
		"agent.phones[0]":  "082",
		" agent.phones[1]": "083",
	}
	for path, want := range cases {
		got, ok := Lookup(record, path)
		if !ok || got != want {
			t.Fatalf("Lookup(%q) = %v, %v; want %v", path, got, ok, want)
		}
	}
	for _, path := range []string{"", "missing", "images[5]", "agent.missing", "title.length"} {
		if _, ok := Lookup(record, path); ok {
			t.Fatalf("Lookup(%q) should fail", path)
		}
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{150000.0, "150000"},
		{149999.6, "149999.6"},
		{3, "3"},
		{int64(-7), "-7"},
		{true, "true"},
		{json.Number("12.50"), "12.50"},
		{[]any{"a", 1.0}, "a,1"},
		{math.NaN(), "NaN"},
	}
	for _, tc := range cases {
		if got := Stringify(tc.in); got != tc.want {
			t.Fatalf("Stringify(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatPriceTemplate(t *testing.T) {
	got := Format(149999.6, "price", "`R ${Number(price).toFixed(0)}`")
	if got != "R 150000" {
		t.Fatalf("expected %q, got %q", "R 150000", got)
	}
}

func TestFormatFallsBackToPlainValue(t *testing.T) {
	cases := []struct {
		value  any
		format string
		want   string
	}{
		{149999.6, "", "149999.6"},
		{149999.6, "   ", "149999.6"},
		{149999.6, "`R ${Number(price).toFixed(0)", "149999.6"},
		{149999.6, "price.toFixed(", "149999.6"},
		{"abc", "price.toFixed(2)", "abc"},
		{12.0, "undefinedName + 1", "12"},
		{12.0, "process.exit(1)", "12"},
		{12.0, "require('fs')", "12"},
		{12.0, "x = 1", "12"},
		{149999.6, "currency(price, 'R', 100000000)", "149999.6"},
		{149999.6, "currency(price, 'R', -1)", "149999.6"},
		{149999.6, "round(price, 1e12)", "149999.6"},
		{149999.6, "price.toFixed(101)", "149999.6"},
		{149999.6, "price.toFixed(1e300)", "149999.6"},
	}
	for _, tc := range cases {
		if got := Format(tc.value, "price", tc.format); got != tc.want {
			t.Fatalf("Format(%v, %q) = %q, want %q", tc.value, tc.format, got, tc.want)
		}
	}
}

func TestFormatExpressions(t *testing.T) {
	cases := []struct {
		variable string
		value    any
		format   string
		want     string
	}{
		{"price", 1234567.891, "price.toLocaleString('en-US')", "1,234,567.891"},
		{"price", 1234567.0, "thousands(price)", "1,234,567"},
		{"price", 1234567.5, "thousands(price, ' ')", "1 234 567.5"},
		{"price", 149999.6, "currency(price)", "R 150 000"},
		{"price", 1999.999, "currency(price, '$', 2)", "$ 2 000.00"},
		{"price", -1500.0, "currency(price, '')", "-1 500"},
		{"price", 2.345, "round(price, 2)", "2.35"},
		{"beds", 1.0, "plural(beds, 'bed', 'beds')", "1 bed"},
		{"beds", 3.0, "plural(beds, 'bed', 'beds')", "3 beds"},
		{"beds", 3.0, "beds === 1 ? 'bed' : 'beds'", "beds"},
		{"beds", 1.0, "beds + ' ' + (beds === 1 ? 'bed' : 'beds')", "1 bed"},
		{"title", "  golf  ", "title.trim().toUpperCase()", "GOLF"},
		{"title", "Golf", "upper(title) + '!'", "GOLF!"},
		{"title", "Golf", "title.length", "4"},
		{"title", "Golf", "title[0]", "G"},
		{"mileage", "120000", "Number(mileage) / 1000 + 'k km'", "120k km"},
		{"mileage", 12345.0, "Math.round(mileage / 1000) + 'k'", "12k"},
		{"mileage", 12345.0, "Math.max(mileage, 20000)", "20000"},
		{"year", 2019.0, "`${year} model`", "2019 model"},
		{"year", 2019.0, "year > 2020 && 'new' || 'used'", "used"},
		{"name", nil, "name ?? 'n/a'", "n/a"},
		{"agent.name", "Thabo", "`Call ${name}`", "Call Thabo"},
		{"price", 10.0, "-price * 2 % 7", "-6"},
		{"flag", false, "!flag", "true"},
		{"n", 5.0, "n == '5'", "true"},
		{"n", 5.0, "n === '5'", "false"},
	}
	for _, tc := range cases {
		if got := Format(tc.value, tc.variable, tc.format); got != tc.want {
			t.Fatalf("Format(%v, %q, %q) = %q, want %q", tc.value, tc.variable, tc.format, got, tc.want)
		}
	}
}

func TestFormatterLocale(t *testing.T) {
	f := NewFormatter(WithLocale(language.German))
	if got := f.Format(1234.5, "price", "price.toLocaleString()"); got != "1.234,5" {
		t.Fatalf("expected German grouping, got %q", got)
	}
	if got := f.Format(1234.5, "price", "price.toLocaleString('en-US')"); got != "1,234.5" {
		t.Fatalf("expected explicit locale to win, got %q", got)
	}
}

func TestFormatterDefaultLocale(t *testing.T) {
	za := Format(1234567.5, "price", "price.toLocaleString('en-ZA')")
	if got := Format(1234567.5, "price", "price.toLocaleString()"); got != za {
		t.Fatalf("default locale should be en-ZA: got %q, want %q", got, za)
	}
}

func TestFormatDigitsUpperBound(t *testing.T) {
	got := Format(1.5, "price", "price.toFixed(100)")
	if !strings.HasPrefix(got, "1.5") || len(got) != 102 {
		t.Fatalf("toFixed(100) = %q", got)
	}
	if got := Format(1.5, "price", "currency(price, '', 100)"); len(got) != 102 {
		t.Fatalf("currency with 100 digits = %q", got)
	}
}

func TestFormatterCachesCompilation(t *testing.T) {
	f := NewFormatter()
	for i := 0; i < 3; i++ {
		if got := f.Format(2.0, "n", "n * 2"); got != "4" {
			t.Fatalf("unexpected result %q", got)
		}
	}
	count := 0
	f.cache.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("expected 1 cached program, got %d", count)
	}
}
