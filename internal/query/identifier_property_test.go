package query

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_IdentifierWhitelist validates that the whitelist accepts
// every name built only from [A-Za-z_][A-Za-z0-9_]* (keywords aside) and
// rejects any name containing a character outside that alphabet.
func TestProperty_IdentifierWhitelist(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("well-formed non-keyword identifiers are accepted", prop.ForAll(
		func(name string) bool {
			if _, keyword := sqlKeywords[strings.ToLower(name)]; keyword {
				return ValidateIdentifier(name) != nil
			}
			return ValidateIdentifier(name) == nil
		},
		gen.RegexMatch(`^[A-Za-z_][A-Za-z0-9_]{0,30}$`),
	))

	properties.Property("any identifier containing a foreign character is rejected", prop.ForAll(
		func(prefix string, bad rune, suffix string) bool {
			if bad >= 'A' && bad <= 'Z' || bad >= 'a' && bad <= 'z' ||
				bad >= '0' && bad <= '9' || bad == '_' {
				return true // not a foreign character, nothing to check
			}
			name := prefix + string(bad) + suffix
			return ValidateIdentifier(name) != nil
		},
		gen.RegexMatch(`^[A-Za-z_][A-Za-z0-9_]{0,10}$`),
		gen.Rune(),
		gen.RegexMatch(`^[A-Za-z0-9_]{0,10}$`),
	))

	properties.TestingRun(t)
}
