package symbols

import (
	"strconv"
	"strings"
)

// NormalizeInterval converts user timeframe spellings ("5m", "2h", "1d") to
// the chart feed's interval codes (minutes as digits, or D/W/M). Unparseable
// input falls back to def.
func NormalizeInterval(v, def string) string {
	t := strings.ToLower(strings.TrimSpace(v))
	if t == "" {
		return def
	}
	if n, ok := strings.CutSuffix(t, "m"); ok && isDigits(n) {
		return n
	}
	if n, ok := strings.CutSuffix(t, "h"); ok && isDigits(n) {
		h, _ := strconv.Atoi(n)
		return strconv.Itoa(h * 60)
	}
	switch t {
	case "d", "1d", "day":
		return "D"
	case "w", "1w", "week":
		return "W"
	case "m", "mo", "month":
		return "M"
	}
	if isDigits(t) {
		return t
	}
	return def
}

// NormalizeTheme maps anything starting with "l" to light, everything else
// to dark.
func NormalizeTheme(v string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "l") {
		return "light"
	}
	return "dark"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
