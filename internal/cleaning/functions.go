package cleaning

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical output of the date cleaners.
const DateLayout = "2006-01-02"

// twoDigitYearPivot splits two-digit years: below it they are 20xx, otherwise 19xx.
const twoDigitYearPivot = 30

var (
	// ErrEmptyValue is returned when there is nothing to clean.
	ErrEmptyValue = errors.New("empty value")

	numberPattern   = regexp.MustCompile(`^([-+]?\d*\.?\d+)\s*[a-z."'’”]*$`)
	ordinalPattern  = regexp.MustCompile(`(\d+)(st|nd|rd|th)\b`)
	fractionPattern = regexp.MustCompile(`^(?:(\d+)[\s-]+)?(\d+)\s*/\s*(\d+)$`)

	ymdPattern     = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
	mdyPattern     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})$`)
	compactPattern = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	monthDayYear   = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2})\s+(\d{4}|\d{2})$`)
	dayMonthYear   = regexp.MustCompile(`^(\d{1,2})\s+([a-z]+)\s+(\d{4}|\d{2})$`)
	monthYear      = regexp.MustCompile(`^([a-z]+)\s+(\d{4})$`)

	holeSizeSuffixes = []string{"inches", "inch", "in.", "in", `''`, `"`, "”", "″"}
)

var boolValues = map[string]bool{
	"yes": true, "y": true, "true": true, "t": true, "x": true, "checked": true, "1": true, "[x]": true,
	"no": false, "n": false, "false": false, "f": false, "unchecked": false, "0": false, "[ ]": false,
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// strictDateLayouts are tried in order by StringToDate.
var strictDateLayouts = []string{
	DateLayout,
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2006-01-02T15:04:05Z07:00",
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unsupported value type %T", v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyValue
	}
	return s, nil
}

// CleanBool interprets checkbox and yes/no answers.
func CleanBool(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int64:
		return numericBool(float64(t))
	case int32:
		return numericBool(float64(t))
	case int:
		return numericBool(float64(t))
	case float64:
		return numericBool(t)
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	b, ok := boolValues[strings.TrimSuffix(strings.ToLower(s), ".")]
	if !ok {
		return nil, fmt.Errorf("cannot interpret %q as a boolean", s)
	}
	return b, nil
}

func numericBool(f float64) (any, error) {
	switch f {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return nil, fmt.Errorf("cannot interpret %v as a boolean", f)
}

// parseNumber strips thousands separators and trailing units.
func parseNumber(s string) (float64, error) {
	cleaned := strings.ToLower(strings.ReplaceAll(s, ",", ""))
	cleaned = strings.TrimPrefix(cleaned, "$")
	m := numberPattern.FindStringSubmatch(strings.TrimSpace(cleaned))
	if m == nil {
		return 0, fmt.Errorf("cannot interpret %q as a number", s)
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("cannot interpret %q as a number: %w", s, err)
	}
	return f, nil
}

// StringToInt converts a value to int64. Whole floats are accepted.
func StringToInt(v any) (any, error) {
	var f float64
	switch t := v.(type) {
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case float64:
		f = t
	default:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		if f, err = parseNumber(s); err != nil {
			return nil, err
		}
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a whole number", f)
	}
	if f >= 1<<63 || f < -(1<<63) {
		return nil, fmt.Errorf("%v is out of range for an integer", f)
	}
	return int64(f), nil
}

// StringToFloat converts a value to float64.
func StringToFloat(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int:
		return float64(t), nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	return parseNumber(s)
}

// StringToDate parses a date in one of a fixed set of layouts.
func StringToDate(v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return t.Format(DateLayout), nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	for _, layout := range strictDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return nil, fmt.Errorf("unrecognized date format %q", s)
}

// CleanDate parses handwritten and typed dates leniently: ordinal
// suffixes, month names, dotted or dashed separators and two-digit years.
func CleanDate(v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return t.Format(DateLayout), nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}

	norm := strings.ToLower(s)
	norm = ordinalPattern.ReplaceAllString(norm, "$1")
	norm = strings.ReplaceAll(norm, ",", " ")
	norm = strings.Join(strings.Fields(norm), " ")
	numeric := strings.NewReplacer(".", "/", "-", "/", " ", "").Replace(norm)

	var year, day int
	var month time.Month
	switch {
	case ymdPattern.MatchString(numeric):
		m := ymdPattern.FindStringSubmatch(numeric)
		year, month, day = atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])
	case mdyPattern.MatchString(numeric):
		m := mdyPattern.FindStringSubmatch(numeric)
		month, day, year = time.Month(atoi(m[1])), atoi(m[2]), expandYear(m[3])
	case compactPattern.MatchString(numeric):
		m := compactPattern.FindStringSubmatch(numeric)
		year, month, day = atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])
	default:
		named := strings.NewReplacer(".", " ", "-", " ", "/", " ").Replace(norm)
		named = strings.Join(strings.Fields(named), " ")
		var ok bool
		switch {
		case monthDayYear.MatchString(named):
			m := monthDayYear.FindStringSubmatch(named)
			month, ok = lookupMonth(m[1])
			day, year = atoi(m[2]), expandYear(m[3])
		case dayMonthYear.MatchString(named):
			m := dayMonthYear.FindStringSubmatch(named)
			month, ok = lookupMonth(m[2])
			day, year = atoi(m[1]), expandYear(m[3])
		case monthYear.MatchString(named):
			m := monthYear.FindStringSubmatch(named)
			month, ok = lookupMonth(m[1])
			day, year = 1, atoi(m[2])
		}
		if !ok {
			return nil, fmt.Errorf("unrecognized date format %q", s)
		}
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	return t.Format(DateLayout), nil
}

func lookupMonth(word string) (time.Month, bool) {
	if len(word) < 3 {
		return 0, false
	}
	m, ok := months[word[:3]]
	if !ok {
		return 0, false
	}
	full := strings.ToLower(m.String())
	if strings.HasPrefix(full, word) {
		return m, true
	}
	return 0, false
}

func expandYear(s string) int {
	y := atoi(s)
	if len(s) != 2 {
		return y
	}
	if y < twoDigitYearPivot {
		return 2000 + y
	}
	return 1900 + y
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// ConvertHoleSizeToDecimal converts fractional inch sizes such as
// "7 7/8", `12-1/4"` or "8 3/4 in" to a decimal number of inches.
func ConvertHoleSizeToDecimal(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int:
		return float64(t), nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}

	norm := strings.ToLower(s)
	for _, suffix := range holeSizeSuffixes {
		norm = strings.TrimSpace(strings.TrimSuffix(norm, suffix))
	}
	if f, err := strconv.ParseFloat(norm, 64); err == nil {
		return f, nil
	}
	m := fractionPattern.FindStringSubmatch(norm)
	if m == nil {
		return nil, fmt.Errorf("cannot interpret %q as a hole size", s)
	}
	den := atoi(m[3])
	if den == 0 {
		return nil, fmt.Errorf("zero denominator in %q", s)
	}
	whole := 0
	if m[1] != "" {
		whole = atoi(m[1])
	}
	return float64(whole) + float64(atoi(m[2]))/float64(den), nil
}
