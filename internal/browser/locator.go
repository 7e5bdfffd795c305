package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

// Strategy selects how a Locator's query is resolved in the DOM.
type Strategy int

const (
	ByCSS   Strategy = iota // document.querySelector
	ByXPath                 // DOM.performSearch, used for text matching
)

// Locator addresses one element of the rendered page.
type Locator struct {
	Query    string
	Strategy Strategy
}

// CSS locates an element by CSS selector.
func CSS(selector string) Locator { return Locator{Query: selector, Strategy: ByCSS} }

// Text locates an element whose own text contains s.
func Text(s string) Locator {
	return Locator{Query: "//*[contains(text(), " + xpathLiteral(s) + ")]", Strategy: ByXPath}
}

// TextWithin locates an element matching scope whose own text contains s.
// scope is an XPath element name test such as "p" or "*".
func TextWithin(scope, s string) Locator {
	if scope == "" {
		scope = "*"
	}
	return Locator{Query: "//" + scope + "[contains(text(), " + xpathLiteral(s) + ")]", Strategy: ByXPath}
}

// ParseLocator reads the form used in scenario files: "text:<s>" for a text
// locator, "xpath:<expr>", or a CSS selector with an optional "css:" prefix.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	var loc Locator
	switch {
	case strings.HasPrefix(s, "text:"):
		loc = Text(strings.TrimPrefix(s, "text:"))
	case strings.HasPrefix(s, "xpath:"):
		loc = Locator{Query: strings.TrimPrefix(s, "xpath:"), Strategy: ByXPath}
	default:
		loc = CSS(strings.TrimPrefix(s, "css:"))
	}
	if strings.TrimSpace(loc.Query) == "" || loc.Query == Text("").Query {
		return Locator{}, fmt.Errorf("empty locator %q", s)
	}
	return loc, nil
}

func (l Locator) String() string {
	if l.Strategy == ByXPath {
		return "xpath:" + l.Query
	}
	return "css:" + l.Query
}

func (l Locator) queryOption() chromedp.QueryOption {
	if l.Strategy == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Outcome is one of several mutually exclusive page states. It is observed
// when any of its locators becomes visible.
type Outcome struct {
	Name     string
	Locators []Locator
}

// Expect builds an outcome satisfied by any of locs.
func Expect(name string, locs ...Locator) Outcome {
	return Outcome{Name: name, Locators: locs}
}

func (o Outcome) String() string {
	parts := make([]string, len(o.Locators))
	for i, l := range o.Locators {
		parts[i] = l.String()
	}
	return fmt.Sprintf("%s[%s]", o.Name, strings.Join(parts, " | "))
}
