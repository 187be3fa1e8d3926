package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatWon renders a KRW amount in 만원 units with thousands separators,
// e.g. 40000000 -> "4,000만원". Amounts under 만원 are shown in 원.
func FormatWon(amount int64) string {
	if amount < 0 {
		return "-" + FormatWon(-amount)
	}
	if amount < 10000 {
		return Thousands(amount) + "원"
	}
	man := amount / 10000
	rest := amount % 10000
	if rest == 0 {
		return Thousands(man) + "만원"
	}
	return fmt.Sprintf("%s만 %s원", Thousands(man), Thousands(rest))
}

// Thousands formats n with comma separators.
func Thousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
