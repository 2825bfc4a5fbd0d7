package extraction

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// amountPattern accepts a number with an optional sign, parentheses and
// currency marker. Dates, page numbers and prose are rejected.
var amountPattern = regexp.MustCompile(`(?i)^[(+\-−]?\s*(?:€|eur|\$|usd|£|gbp)?\s*[(+\-−]?\d[\d.,\s\x{00a0}]*\s*(?:€|eur|\$|usd|£|gbp)?\s*\)?$`)

var errGrouping = errors.New("invalid digit grouping")

// ParseAmount reads a monetary amount written in either European
// ("2.100,00 €") or English ("2,100.00") notation. The sign is dropped:
// statements show debits as negative numbers and the metrics are magnitudes.
//
// Thousands groups must be well formed: a leading group of one to three
// digits followed by groups of exactly three. Dotted dates such as
// "01.10.2025" and values like "10.2025" are therefore not amounts.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return 0, false
	}
	num := strings.Trim(numericPart(s), ".,")
	if num == "" {
		return 0, false
	}

	whole, frac, err := splitDecimal(num)
	if err != nil {
		return 0, false
	}
	whole, err = ungroup(whole)
	if err != nil {
		return 0, false
	}
	if frac != "" {
		whole += "." + frac
	}

	v, err := strconv.ParseFloat(whole, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// numericPart keeps digits and separators. Whitespace between two digits
// is kept as a single space since it groups thousands ("2 100,00").
func numericPart(s string) string {
	var b strings.Builder
	lastDigit, gap := false, false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			if gap && lastDigit {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			lastDigit, gap = true, false
		case r == '.' || r == ',':
			b.WriteRune(r)
			lastDigit, gap = false, false
		case unicode.IsSpace(r):
			gap = true
		default:
			lastDigit, gap = false, false
		}
	}
	return b.String()
}

// splitDecimal finds the decimal separator, if any. With both '.' and ','
// present the one that appears last is decimal. A lone separator is
// decimal when one or two digits follow it and thousands when exactly
// three do.
func splitDecimal(num string) (whole, frac string, err error) {
	lastDot := strings.LastIndexByte(num, '.')
	lastComma := strings.LastIndexByte(num, ',')

	dec := -1
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec = max(lastDot, lastComma)
		if strings.Count(num, num[dec:dec+1]) != 1 {
			return "", "", errGrouping
		}
	case lastDot >= 0 || lastComma >= 0:
		idx := max(lastDot, lastComma)
		if strings.Count(num, num[idx:idx+1]) > 1 {
			break
		}
		switch n := len(num) - idx - 1; {
		case n <= 2:
			dec = idx
		case n > 3:
			return "", "", errGrouping
		}
	}
	if dec < 0 {
		return num, "", nil
	}
	frac = num[dec+1:]
	if strings.Trim(frac, "0123456789") != "" {
		return "", "", errGrouping
	}
	return num[:dec], frac, nil
}

// ungroup strips thousands separators after checking the group sizes.
func ungroup(whole string) (string, error) {
	sep := strings.IndexAny(whole, "., ")
	if sep < 0 {
		return whole, nil
	}
	groups := strings.Split(whole, whole[sep:sep+1])
	for i, g := range groups {
		if strings.Trim(g, "0123456789") != "" {
			// Mixed thousands separators, e.g. "1.234 567".
			return "", errGrouping
		}
		if (i == 0 && (len(g) < 1 || len(g) > 3)) || (i > 0 && len(g) != 3) {
			return "", errGrouping
		}
	}
	return strings.Join(groups, ""), nil
}
