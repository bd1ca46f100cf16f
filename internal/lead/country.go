package lead

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// CountryOther is the bucket for numbers no rule recognizes.
const CountryOther = "Other"

// Country classification is a best-effort heuristic over phone prefixes and
// is documented as approximate. Rules are tried in order and the first match
// wins: international prefixes longest first, then national number shapes.
type countryRule struct {
	country string
	pattern string
	re      *regexp.Regexp
}

var internationalPrefixes = []struct {
	prefix  string
	country string
}{
	{"+593", "Ecuador"},
	{"+57", "Colombia"},
	{"+51", "Peru"},
	{"+52", "Mexico"},
	{"+54", "Argentina"},
	{"+56", "Chile"},
	{"+34", "Spain"},
	{"+1", "United States"},
}

// National formats as returned by the providers (no country code).
var nationalPatterns = []struct {
	pattern string
	country string
}{
	{`^09[0-9]{8}$`, "Ecuador"},
	{`^0[2-7][0-9]{7}$`, "Ecuador"},
	{`^[2-9][0-9]{9}$`, "United States"},
}

var countryRules = buildCountryRules()

func buildCountryRules() []countryRule {
	prefixes := append(internationalPrefixes[:0:0], internationalPrefixes...)
	sort.SliceStable(prefixes, func(i, j int) bool {
		return len(prefixes[i].prefix) > len(prefixes[j].prefix)
	})
	rules := make([]countryRule, 0, len(prefixes)+len(nationalPatterns))
	for _, p := range prefixes {
		pattern := `^\` + p.prefix
		rules = append(rules, countryRule{country: p.country, pattern: pattern, re: regexp.MustCompile(pattern)})
	}
	for _, p := range nationalPatterns {
		rules = append(rules, countryRule{country: p.country, pattern: p.pattern, re: regexp.MustCompile(p.pattern)})
	}
	return rules
}

// NormalizePhone keeps digits and '+' and rewrites a leading international
// "00" dialing prefix to '+'.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	return s
}

// ClassifyCountry returns the country suggested by phone, or CountryOther.
func ClassifyCountry(phone string) string {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return CountryOther
	}
	for _, rule := range countryRules {
		if rule.re.MatchString(normalized) {
			return rule.country
		}
	}
	return CountryOther
}

// CountrySQL renders the classification as a Postgres CASE expression over
// column, using the same rule table and order as ClassifyCountry.
func CountrySQL(column string) string {
	normalized := fmt.Sprintf(
		`regexp_replace(regexp_replace(coalesce(%s, ''), '[^0-9+]', '', 'g'), '^00', '+')`,
		column,
	)
	var b strings.Builder
	b.WriteString("(CASE")
	for _, rule := range countryRules {
		fmt.Fprintf(&b, " WHEN %s ~ '%s' THEN '%s'", normalized, rule.pattern, rule.country)
	}
	fmt.Fprintf(&b, " ELSE '%s' END)", CountryOther)
	return b.String()
}
