package prompt

import (
	"math/big"
	"regexp"
	"strings"
)

// lakh is the number of currency units in one LPA.
const lakh = 100000

// salaryToken matches bare integers, optionally with thousands separators.
// It always starts with a digit so every match parses.
var salaryToken = regexp.MustCompile(`\b\d[\d,]*\b`)

// NormalizeSalary rewrites bare numbers in a question into "<n> LPA" so the
// model compares against offers.package_lpa in the right unit. Questions that
// already mention LPA are returned unchanged.
//
// Every integer in the question is rewritten, including years and counts
// ("top 3" becomes "top 0.00003 LPA").
func NormalizeSalary(question string) string {
	if strings.Contains(strings.ToLower(question), "lpa") {
		return question
	}
	return salaryToken.ReplaceAllStringFunc(question, func(token string) string {
		return formatLPA(strings.ReplaceAll(token, ",", "")) + " LPA"
	})
}

// formatLPA divides digits by one lakh exactly and renders the quotient with
// at least one fractional digit: "2000000" -> "20.0", "150000" -> "1.5".
func formatLPA(digits string) string {
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		// unreachable: salaryToken only matches digits and commas
		return digits
	}
	q := new(big.Rat).SetFrac(n, big.NewInt(lakh))
	if q.IsInt() {
		return q.Num().String() + ".0"
	}
	s := q.FloatString(5)
	return strings.TrimRight(s, "0")
}
