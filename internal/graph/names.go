package graph

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

var validName = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// isValidName reports whether s can be used as a GraphQL name.
func isValidName(s string) bool {
	return validName.MatchString(s) && !strings.HasPrefix(s, "__")
}

// upperCamel turns snake_case into UpperCamelCase.
func upperCamel(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' || r == ' ' || r == '-' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lowerCamel turns snake_case into lowerCamelCase.
func lowerCamel(s string) string {
	u := upperCamel(strings.TrimLeft(s, "_"))
	if u == "" {
		return ""
	}
	runes := []rune(u)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// classNames holds the generated names for one relation.
type classNames struct {
	Type   string // Widget
	Plural string // Widgets
	Input  string // WidgetInput
	Patch  string // WidgetPatch
}

func namesFor(relation string) classNames {
	singular := upperCamel(inflection.Singular(relation))
	plural := upperCamel(inflection.Plural(inflection.Singular(relation)))
	if plural == singular {
		plural += "List"
	}
	return classNames{
		Type:   singular,
		Plural: plural,
		Input:  singular + "Input",
		Patch:  singular + "Patch",
	}
}
