// Package extract pulls scalar and array values out of namespaced XML case records.
package extract

import "encoding/xml"

// Node is a generic XML element. Namespaces are kept in XMLName.Space.
type Node struct {
	XMLName xml.Name
	Content string `xml:",chardata"`
	Nodes   []Node `xml:",any"`
}

// Child returns the first direct child with the given namespace and local name.
func (n *Node) Child(space, local string) *Node {
	if n == nil {
		return nil
	}
	for i := range n.Nodes {
		c := &n.Nodes[i]
		if c.XMLName.Local == local && c.XMLName.Space == space {
			return c
		}
	}
	return nil
}

// Children returns every direct child with the given namespace and local name, in document order.
func (n *Node) Children(space, local string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for i := range n.Nodes {
		c := &n.Nodes[i]
		if c.XMLName.Local == local && c.XMLName.Space == space {
			out = append(out, c)
		}
	}
	return out
}
