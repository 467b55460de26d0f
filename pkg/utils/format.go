// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatMoney formats an amount with thousands separators and two decimals,
// e.g. 12,345.67.
func FormatMoney(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	result := groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage value with sign, e.g. +4.20%.
func FormatPercent(value float64) string {
	if math.IsNaN(value) {
		return "n/a"
	}
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatRatio formats a fraction as a percentage, e.g. 0.042 as +4.20%.
func FormatRatio(value float64) string {
	return FormatPercent(value * 100)
}

// FormatCompact formats a number in compact form (K/M/B).
func FormatCompact(amount float64) string {
	abs := math.Abs(amount)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", amount/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", amount/1e6)
	case abs >= 1e4:
		return fmt.Sprintf("%.1fK", amount/1e3)
	}
	return FormatMoney(amount)
}
