package localbrain

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jeanpaul/jarbas/internal/store"
)

var (
	teachPattern = regexp.MustCompile(`(?is)^\s*(?:learn|teach)\b(.*)$`)
	// The first operand may carry a sign and must not continue a word or
	// number, so "1e3" is never read as "3".
	arithmeticPattern = regexp.MustCompile(`(?:^|[^\w.+-])(-?\d+(?:\.\d+)?)\s*([-+*/])\s*(\d+(?:\.\d+)?)`)
	clockPattern      = regexp.MustCompile(`\b(time|date|clock|hour|hours|today|hora|horas|dia|data)\b`)
)

// parseTeach reports whether input starts with a teach keyword. A nil
// lesson with ok set means the command is malformed; only
// "keyword: trigger = response" is well formed.
func parseTeach(input string) (*Lesson, bool) {
	m := teachPattern.FindStringSubmatch(input)
	if m == nil {
		return nil, false
	}
	body, found := strings.CutPrefix(strings.TrimLeft(m[1], " \t"), ":")
	if !found {
		return nil, true
	}
	if strings.Count(body, "=") != 1 {
		return nil, true
	}
	parts := strings.SplitN(body, "=", 2)
	trigger := store.Normalize(parts[0])
	response := strings.TrimSpace(parts[1])
	if trigger == "" || response == "" {
		return nil, true
	}
	return &Lesson{Trigger: trigger, Response: response}, true
}

// evaluate computes the first two-operand expression found in s. Nothing
// but the matched operands and operator is ever interpreted.
func evaluate(s string) (string, float64, bool) {
	loc := arithmeticPattern.FindStringSubmatchIndex(s)
	if loc == nil || exponentFollows(s[loc[1]:]) {
		return "", 0, false
	}
	m := []string{s[loc[2]:loc[1]], s[loc[2]:loc[3]], s[loc[4]:loc[5]], s[loc[6]:loc[7]]}
	a, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", 0, false
	}
	b, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return "", 0, false
	}

	var v float64
	switch m[2] {
	case "+":
		v = a + b
	case "-":
		v = a - b
	case "*":
		v = a * b
	case "/":
		if b == 0 {
			return "", 0, false
		}
		v = a / b
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "", 0, false
	}
	return m[0], v, true
}

// exponentFollows reports whether rest continues the last operand in
// scientific notation, as in the "e3" of "1 + 1e3".
func exponentFollows(rest string) bool {
	if len(rest) < 2 || (rest[0] != 'e' && rest[0] != 'E') {
		return false
	}
	c := rest[1]
	return c == '+' || c == '-' || (c >= '0' && c <= '9')
}

// formatNumber rounds to ten decimal places and prints the shortest form,
// so whole numbers have no fractional part.
func formatNumber(v float64) string {
	if math.Abs(v) < 1e15 {
		v = math.Round(v*1e10) / 1e10
	}
	if v == 0 {
		v = 0 // drop negative zero
	}
	if math.Abs(v) >= 1e21 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
