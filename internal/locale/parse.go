// Package locale parses Chilean-formatted export cells. Every parser returns
// nil for placeholders and malformed input instead of failing, since a single
// bad cell must never stop an import.
package locale

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var absentMarkers = map[string]struct{}{
	"":     {},
	"-":    {},
	"nan":  {},
	"none": {},
	"null": {},
}

// IsAbsent reports whether s is empty or one of the placeholder tokens the
// exports use for missing values.
func IsAbsent(s string) bool {
	_, ok := absentMarkers[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Text returns the trimmed value, or nil when it is a placeholder.
func Text(raw string) *string {
	s := strings.TrimSpace(raw)
	if IsAbsent(s) {
		return nil
	}
	return &s
}

// Number parses "4.250,50" as 4250.5: dots group thousands and the comma is
// the decimal separator.
func Number(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if IsAbsent(s) {
		return nil
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return parseFloat(s)
}

// Int is Number rounded to the nearest integer, ties to even.
func Int(raw string) *int {
	n := Number(raw)
	if n == nil {
		return nil
	}
	v := int(math.RoundToEven(*n))
	return &v
}

// Percent parses "5%" or "2,5%" as 5 and 2.5. The value is not divided by 100.
func Percent(raw string) *float64 {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimSpace(s)
	if IsAbsent(s) {
		return nil
	}
	return parseFloat(s)
}

// Bool maps SI to true and NO to false. Anything else is absent, never false.
func Bool(raw string) *bool {
	var v bool
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SI", "SÍ":
		v = true
	case "NO":
		v = false
	default:
		return nil
	}
	return &v
}

var dateLayouts = []string{"2-1-2006", "2/1/2006", "2006-1-2"}

var spanishMonths = []struct {
	name  string
	month time.Month
}{
	{"enero", time.January},
	{"febrero", time.February},
	{"marzo", time.March},
	{"abril", time.April},
	{"mayo", time.May},
	{"junio", time.June},
	{"julio", time.July},
	{"agosto", time.August},
	{"septiembre", time.September},
	{"octubre", time.October},
	{"noviembre", time.November},
	{"diciembre", time.December},
}

var yearPattern = regexp.MustCompile(`\d{4}`)

// Date returns an ISO date (YYYY-MM-DD). Numeric day-month-year and
// year-month-day forms are tried first, then a Spanish month name with a
// four digit year ("diciembre-2017"), which resolves to the first of the month.
func Date(raw string) *string {
	s := strings.TrimSpace(raw)
	if IsAbsent(s) {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			iso := t.Format(time.DateOnly)
			return &iso
		}
	}

	lower := strings.ToLower(s)
	for _, m := range spanishMonths {
		if !strings.Contains(lower, m.name) {
			continue
		}
		year := yearPattern.FindString(s)
		if year == "" {
			continue
		}
		y, err := strconv.Atoi(year)
		if err != nil {
			continue
		}
		iso := time.Date(y, m.month, 1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
		return &iso
	}
	return nil
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
