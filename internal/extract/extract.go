package extract

import "strings"

// Namespace is the default namespace of landlord-tenant extract records.
const Namespace = "http://www.example.org/LandlordTenantExtractSchema"

// Value is a scalar field lookup result. Found is false when the field node is missing.
type Value struct {
	Text  string
	Found bool
}

// Present reports a found, non-empty value.
func (v Value) Present() bool {
	return v.Found && v.Text != ""
}

// SQL returns the value as a query argument. Missing and empty values become NULL.
func (v Value) SQL() any {
	if !v.Present() {
		return nil
	}
	return v.Text
}

// Array is an ordered array field. Found is false when the grouping node is missing,
// which is distinct from a grouping node with no items.
type Array struct {
	Items []string
	Found bool
}

// Literal renders the array as a Postgres array literal, e.g. {a,b}. An item
// Postgres would misread is double-quoted with " and \ escaped.
func (a Array) Literal() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, it := range a.Items {
		if i > 0 {
			b.WriteByte(',')
		}
		if !needsQuotes(it) {
			b.WriteString(it)
			continue
		}
		b.WriteByte('"')
		for _, r := range it {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func needsQuotes(s string) bool {
	if s == "" || strings.EqualFold(s, "NULL") {
		return true
	}
	return strings.ContainsAny(s, "{},\"\\ \t\n\r\v\f")
}

// SQL returns the array literal, or nil when the grouping node was missing.
func (a Array) SQL() any {
	if !a.Found {
		return nil
	}
	return a.Literal()
}

// Extractor reads fields of a single namespace.
type Extractor struct {
	Namespace string
}

// New returns an Extractor for the given namespace.
func New(namespace string) Extractor {
	return Extractor{Namespace: namespace}
}

// Text returns the text of the first field child of n.
func (x Extractor) Text(n *Node, field string) Value {
	c := n.Child(x.Namespace, field)
	if c == nil {
		return Value{}
	}
	return Value{Text: strings.TrimSpace(c.Content), Found: true}
}

// Group returns the first grouping child of n.
func (x Extractor) Group(n *Node, field string) (*Node, bool) {
	c := n.Child(x.Namespace, field)
	return c, c != nil
}

// Items returns the item children of a grouping node.
func (x Extractor) Items(group *Node, item string) []*Node {
	return group.Children(x.Namespace, item)
}

// Array collects the text of every item child under the first group child of n.
func (x Extractor) Array(n *Node, group, item string) Array {
	g, ok := x.Group(n, group)
	if !ok {
		return Array{}
	}
	items := x.Items(g, item)
	out := Array{Found: true, Items: make([]string, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, strings.TrimSpace(it.Content))
	}
	return out
}

// NestedArray locates every item under the first group child of n and collects
// the text of each item's own label child. Items without the label contribute "".
func (x Extractor) NestedArray(n *Node, group, item, label string) Array {
	g, ok := x.Group(n, group)
	if !ok {
		return Array{}
	}
	items := x.Items(g, item)
	out := Array{Found: true, Items: make([]string, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, x.Text(it, label).Text)
	}
	return out
}
