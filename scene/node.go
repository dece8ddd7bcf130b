package scene

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nothing010101/pfp/geometry"
)

// Node is an element of the presentation tree: a tag with a class list,
// inline style and attributes.
type Node struct {
	ID       string            `json:"id,omitempty"`
	Tag      string            `json:"tag"`
	Classes  []string          `json:"classes,omitempty"`
	Style    map[string]string `json:"style,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*Node           `json:"children,omitempty"`

	parent *Node
}

func NewNode(tag, id string, classes ...string) *Node {
	return &Node{
		ID:      id,
		Tag:     tag,
		Classes: append([]string(nil), classes...),
		Style:   make(map[string]string),
		Attrs:   make(map[string]string),
	}
}

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) AppendChild(c *Node) {
	if c.parent != nil {
		c.parent.RemoveChild(c)
	}
	c.parent = n
	n.Children = append(n.Children, c)
}

func (n *Node) RemoveChild(c *Node) {
	for i, child := range n.Children {
		if child == c {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			c.parent = nil
			return
		}
	}
}

func (n *Node) HasClass(c string) bool {
	for _, have := range n.Classes {
		if have == c {
			return true
		}
	}
	return false
}

func (n *Node) classIndex(c string) int {
	for i, have := range n.Classes {
		if have == c {
			return i
		}
	}
	return -1
}

// insertClass puts c at index at, or at the end when at is out of range.
// Nothing happens if c is already present.
func (n *Node) insertClass(c string, at int) {
	if n.HasClass(c) {
		return
	}
	if at < 0 || at > len(n.Classes) {
		at = len(n.Classes)
	}
	n.Classes = append(n.Classes[:at:at], append([]string{c}, n.Classes[at:]...)...)
}

// AddClass appends c unless present. It reports whether the list changed.
func (n *Node) AddClass(c string) bool {
	if n.HasClass(c) {
		return false
	}
	n.Classes = append(n.Classes, c)
	return true
}

// RemoveClass drops c. It reports whether the list changed.
func (n *Node) RemoveClass(c string) bool {
	for i, have := range n.Classes {
		if have == c {
			n.Classes = append(n.Classes[:i:i], n.Classes[i+1:]...)
			return true
		}
	}
	return false
}

// StyleValue returns an inline style property and whether it is set.
func (n *Node) StyleValue(prop string) (string, bool) {
	v, ok := n.Style[prop]
	return v, ok
}

// SetStyle sets an inline property. An empty value removes it.
func (n *Node) SetStyle(prop, value string) {
	if value == "" {
		delete(n.Style, prop)
		return
	}
	if n.Style == nil {
		n.Style = make(map[string]string)
	}
	n.Style[prop] = value
}

func (n *Node) Attr(name string) string {
	return n.Attrs[name]
}

func (n *Node) SetAttr(name, value string) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[name] = value
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the first node in the subtree with the given id.
func (n *Node) Find(id string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.ID == id {
			found = c
			return false
		}
		return true
	})
	return found
}

// FindByClass returns every node in the subtree carrying class c.
func (n *Node) FindByClass(c string) []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		if node.HasClass(c) {
			out = append(out, node)
		}
		return true
	})
	return out
}

// Clone deep-copies the subtree. The copy has no parent.
func (n *Node) Clone() *Node {
	c := &Node{
		ID:      n.ID,
		Tag:     n.Tag,
		Classes: append([]string(nil), n.Classes...),
		Style:   make(map[string]string, len(n.Style)),
		Attrs:   make(map[string]string, len(n.Attrs)),
	}
	for k, v := range n.Style {
		c.Style[k] = v
	}
	for k, v := range n.Attrs {
		c.Attrs[k] = v
	}
	for _, child := range n.Children {
		cc := child.Clone()
		cc.parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

// Equal compares two subtrees, including class order.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.ID != o.ID || n.Tag != o.Tag || len(n.Classes) != len(o.Classes) ||
		len(n.Style) != len(o.Style) || len(n.Attrs) != len(o.Attrs) ||
		len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Classes {
		if n.Classes[i] != o.Classes[i] {
			return false
		}
	}
	for k, v := range n.Style {
		if ov, ok := o.Style[k]; !ok || ov != v {
			return false
		}
	}
	for k, v := range n.Attrs {
		if ov, ok := o.Attrs[k]; !ok || ov != v {
			return false
		}
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// StyleString renders the inline style the way a style attribute would.
func (n *Node) StyleString() string {
	keys := make([]string, 0, len(n.Style))
	for k := range n.Style {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + n.Style[k]
	}
	return strings.Join(parts, "; ")
}

// ComputedPx resolves a length property to pixels. Percentages resolve
// against the parent, unset lengths inherit the parent box.
func (n *Node) ComputedPx(prop string) (float64, error) {
	v, ok := n.Style[prop]
	if !ok || v == "" || v == "auto" {
		if n.parent == nil {
			return 0, fmt.Errorf("node %q has no %s", n.ID, prop)
		}
		return n.parent.ComputedPx(prop)
	}
	if strings.HasSuffix(v, "%") {
		pct, err := geometry.ParsePx(strings.TrimSuffix(v, "%"))
		if err != nil {
			return 0, fmt.Errorf("node %q %s: %w", n.ID, prop, err)
		}
		if n.parent == nil {
			return 0, fmt.Errorf("node %q has a relative %s and no parent", n.ID, prop)
		}
		base, err := n.parent.ComputedPx(prop)
		if err != nil {
			return 0, err
		}
		return base * pct / 100, nil
	}
	px, err := geometry.ParsePx(v)
	if err != nil {
		return 0, fmt.Errorf("node %q %s: %w", n.ID, prop, err)
	}
	return px, nil
}
