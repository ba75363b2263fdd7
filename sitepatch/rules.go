// Package sitepatch applies literal rewrite rules to static pages and splices
// new bodies between an existing page's header and footer.
package sitepatch

import (
	"strings"
)

// Rule replaces every occurrence of Old with New.
type Rule struct {
	Old string `mapstructure:"old" validate:"required"`
	New string `mapstructure:"new"`
}

// Apply runs rules in order over content and reports whether anything changed.
func Apply(content string, rules []Rule) (string, bool) {
	out := content
	for _, r := range rules {
		out = strings.ReplaceAll(out, r.Old, r.New)
	}
	return out, out != content
}

var linkAnchors = []string{"catalog", "categories", "quiz", "services", "reviews", "form"}

// FixLinks rewrites links to index.html into root-relative links.
func FixLinks() []Rule {
	rules := []Rule{{Old: `href="index.html"`, New: `href="/"`}}
	for _, anchor := range linkAnchors {
		rules = append(rules, Rule{
			Old: `href="index.html#` + anchor + `"`,
			New: `href="/#` + anchor + `"`,
		})
	}
	return rules
}

// FixTemplate repairs placeholders split or spaced out by an editor.
func FixTemplate() []Rule {
	return []Rule{
		{Old: "{{ \n                    LOCATION }}", New: "{{ LOCATION }}"},
		{Old: "{{\n                    LOCATION }}", New: "{{ LOCATION }}"},
		{Old: "{ { GALLERY_JS } }", New: "{{ GALLERY_JS }}"},
	}
}
