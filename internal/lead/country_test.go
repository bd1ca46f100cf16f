package lead

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyCountry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{name: "ecuador international", phone: "+593 99 123 4567", want: "Ecuador"},
		{name: "ecuador double zero", phone: "00593 2 245 6789", want: "Ecuador"},
		{name: "ecuador mobile national", phone: "099 123 4567", want: "Ecuador"},
		{name: "ecuador landline national", phone: "02-245-6789", want: "Ecuador"},
		{name: "colombia", phone: "+57 300 1234567", want: "Colombia"},
		{name: "spain", phone: "+34 912 34 56 78", want: "Spain"},
		{name: "us international", phone: "+1 (305) 555-1234", want: "United States"},
		{name: "us national", phone: "(305) 555-1234", want: "United States"},
		{name: "empty", phone: "", want: CountryOther},
		{name: "unknown prefix", phone: "+44 20 7946 0958", want: CountryOther},
		{name: "short local", phone: "12345", want: CountryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ClassifyCountry(tt.phone))
		})
	}
}

func TestCountryRulesLongestPrefixFirst(t *testing.T) {
	t.Parallel()

	var lastLen = 100
	for _, rule := range countryRules {
		if !strings.HasPrefix(rule.pattern, `^\+`) {
			break
		}
		require.LessOrEqual(t, len(rule.pattern), lastLen, "prefix %s out of order", rule.pattern)
		lastLen = len(rule.pattern)
	}
	require.Equal(t, "Ecuador", countryRules[0].country)
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	require.Equal(t, "+593991234567", NormalizePhone("+593 (99) 123-4567"))
	require.Equal(t, "+34912345678", NormalizePhone("0034 912 345 678"))
	require.Equal(t, "", NormalizePhone("n/a"))
}

func TestCountrySQLCoversEveryRule(t *testing.T) {
	t.Parallel()

	expr := CountrySQL("phone")
	require.True(t, strings.HasPrefix(expr, "(CASE"))
	require.Contains(t, expr, "coalesce(phone, '')")
	require.Contains(t, expr, `~ '^\+593' THEN 'Ecuador'`)
	require.Contains(t, expr, "ELSE 'Other' END)")
	require.Equal(t, len(countryRules), strings.Count(expr, " WHEN "))
	// Precedence in SQL must match ClassifyCountry.
	require.Less(t, strings.Index(expr, `'^\+593'`), strings.Index(expr, `'^\+1'`))
}
