package roadgraph

import (
	"strings"
	"unicode"
)

// RestrictionRule tags roads whose name mentions Keyword.
// Single-word keywords must match a whole word of the road name.
type RestrictionRule struct {
	Keyword string
	Type    string
}

// DefaultRestrictionRules covers the rotation ring roads of São Paulo plus
// roads named after the truck-restricted zones.
func DefaultRestrictionRules() []RestrictionRule {
	return []RestrictionRule{
		{Keyword: "marginal tietê", Type: "Rodizio"},
		{Keyword: "marginal pinheiros", Type: "Rodizio"},
		{Keyword: "avenida dos bandeirantes", Type: "Rodizio"},
		{Keyword: "avenida afonso d'escragnolle taunay", Type: "Rodizio"},
		{Keyword: "complexo viário maria maluf", Type: "Rodizio"},
		{Keyword: "avenida presidente tancredo neves", Type: "Rodizio"},
		{Keyword: "avenida juntas provisórias", Type: "Rodizio"},
		{Keyword: "avenida salim farah maluf", Type: "Rodizio"},
		{Keyword: "ver", Type: "VER"},
		{Keyword: "zmrc", Type: "ZMRC"},
	}
}

// TagRestricted marks pending edges whose name matches a rule. The first
// matching rule wins. It returns the number of edges tagged.
func (b *Builder) TagRestricted(rules []RestrictionRule) int {
	tagged := 0
	for i := range b.edges {
		e := &b.edges[i]
		name := strings.ToLower(e.Name)
		if name == "" {
			continue
		}
		words := strings.FieldsFunc(name, func(r rune) bool { return !unicode.IsLetter(r) && r != '\'' })
		for _, r := range rules {
			if matchKeyword(name, words, strings.ToLower(r.Keyword)) {
				e.Restricted = true
				e.RestrictionType = r.Type
				tagged++
				break
			}
		}
	}
	return tagged
}

func matchKeyword(name string, words []string, kw string) bool {
	if kw == "" {
		return false
	}
	if strings.ContainsRune(kw, ' ') {
		return strings.Contains(name, kw)
	}
	for _, w := range words {
		if w == kw {
			return true
		}
	}
	return false
}
