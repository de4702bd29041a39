package browser

import (
	"fmt"
	"regexp"
	"strings"
)

// Strategy identifies how a By locates an element.
type Strategy int

const (
	StrategyRole Strategy = iota
	StrategyLabel
	StrategyText
	StrategyCSS
)

func (s Strategy) String() string {
	switch s {
	case StrategyRole:
		return "role"
	case StrategyLabel:
		return "label"
	case StrategyText:
		return "text"
	case StrategyCSS:
		return "css"
	default:
		return "unknown"
	}
}

// By is a single way of locating a logical UI element.
type By struct {
	Strategy Strategy

	// Role is the ARIA role for StrategyRole.
	Role string
	// Name matches the accessible name (role), the label text (label) or the
	// text content (text). Exact string match unless Pattern is set.
	Name    string
	Pattern *regexp.Regexp
	// Level restricts headings to an aria-level; zero means any.
	Level int

	// Selector is the CSS selector for StrategyCSS.
	Selector string

	// HasText keeps only matches whose text content matches.
	HasText *regexp.Regexp
	// Has keeps only matches containing an element located by Has.
	Has *By
}

// Role locates by ARIA role and exact accessible name.
func Role(role, name string) By {
	return By{Strategy: StrategyRole, Role: role, Name: name}
}

// RoleMatching locates by ARIA role and an accessible name pattern.
func RoleMatching(role string, pattern *regexp.Regexp) By {
	return By{Strategy: StrategyRole, Role: role, Pattern: pattern}
}

// Label locates a form control by its label text.
func Label(text string) By {
	return By{Strategy: StrategyLabel, Name: text}
}

// Text locates by visible text content.
func Text(pattern *regexp.Regexp) By {
	return By{Strategy: StrategyText, Pattern: pattern}
}

// CSS locates by CSS selector.
func CSS(selector string) By {
	return By{Strategy: StrategyCSS, Selector: selector}
}

// AtLevel restricts a heading role to the given level.
func (b By) AtLevel(level int) By {
	b.Level = level
	return b
}

// WithText keeps only matches whose text matches pattern.
func (b By) WithText(pattern *regexp.Regexp) By {
	b.HasText = pattern
	return b
}

// Containing keeps only matches that contain child.
func (b By) Containing(child By) By {
	b.Has = &child
	return b
}

func (b By) String() string {
	var sb strings.Builder
	switch b.Strategy {
	case StrategyRole:
		fmt.Fprintf(&sb, "role=%s", b.Role)
	case StrategyLabel:
		sb.WriteString("label")
	case StrategyText:
		sb.WriteString("text")
	case StrategyCSS:
		fmt.Fprintf(&sb, "css=%s", b.Selector)
	}
	if b.Pattern != nil {
		fmt.Fprintf(&sb, "[name~/%s/]", b.Pattern)
	} else if b.Name != "" {
		fmt.Fprintf(&sb, "[name=%q]", b.Name)
	}
	if b.Level > 0 {
		fmt.Fprintf(&sb, "[level=%d]", b.Level)
	}
	if b.HasText != nil {
		fmt.Fprintf(&sb, "[has-text~/%s/]", b.HasText)
	}
	if b.Has != nil {
		fmt.Fprintf(&sb, "[has=%s]", b.Has)
	}
	return sb.String()
}

// Target is a named, ordered fallback chain of strategies. Resolution tries
// the strategies in order and the first match wins. Within scopes the
// lookup to the first match of another target.
type Target struct {
	Name       string
	Within     *Target
	Strategies []By
}

// NewTarget builds a target from one or more strategies.
func NewTarget(name string, first By, fallbacks ...By) Target {
	return Target{Name: name, Strategies: append([]By{first}, fallbacks...)}
}

// In returns a copy of t scoped to parent.
func (t Target) In(parent Target) Target {
	p := parent
	t.Within = &p
	return t
}

// Path returns the scope chain of t joined with " > ", outermost first.
func (t Target) Path() string {
	if t.Within == nil {
		return t.Name
	}
	return t.Within.Path() + " > " + t.Name
}

func (t Target) String() string {
	parts := make([]string, 0, len(t.Strategies))
	for _, s := range t.Strategies {
		parts = append(parts, s.String())
	}
	return fmt.Sprintf("%s {%s}", t.Path(), strings.Join(parts, " | "))
}
