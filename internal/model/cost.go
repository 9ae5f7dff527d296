package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SanitizeCost keeps digits and decimal separators. It returns false when
// the value holds more than one separator.
func SanitizeCost(raw string) (string, bool) {
	var b strings.Builder
	seps := 0
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == ',':
			seps++
			b.WriteRune(r)
		}
	}
	if seps > 1 {
		return "", false
	}
	return b.String(), true
}

// ParseCost reads a cost cell. Comma is accepted as the decimal separator
// and unparsable cells count as zero.
func ParseCost(raw string) decimal.Decimal {
	raw = strings.Replace(strings.TrimSpace(raw), ",", ".", 1)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func SumCosts(costs []string) decimal.Decimal {
	total := decimal.Zero
	for _, c := range costs {
		total = total.Add(ParseCost(c))
	}
	return total
}
