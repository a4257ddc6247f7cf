// Package model holds the in-memory tree produced by parsing a flattened
// device tree blob: Node and Property values linked by parent/child/sibling
// pointers, backed by a single arena allocation per tree.
package model

import "strings"

// Node is one device tree node. Fields are exported directly rather than
// hidden behind getter methods; Parent/FirstChild/NextSibling are trivial
// pointer accessors and a wrapper adds nothing but ceremony.
//
// FirstChild/NextSibling form a singly-linked list built by prepending as
// children are parsed, so it runs in reverse of on-wire order.
type Node struct {
	Name        string
	Parent      *Node
	FirstChild  *Node
	NextSibling *Node
	FirstProp   *Property

	// Phandle is the node's phandle value, or 0 if it has none.
	Phandle uint32

	// Index is this node's position in the owning Tree's arena, recovered
	// directly rather than reconstructed from a pointer offset.
	Index int
}

// Property is one device tree property: a name and an opaque byte payload.
// Properties on a node are chained through NextSiblingProp. The chain is
// built by prepending as the structure block is parsed, so it runs in the
// reverse of on-wire declaration order; the encoder replays it in reverse
// again on the way out, which is what keeps a parse/serialize/parse cycle
// stable (see Node's FirstChild/NextSibling for the same convention).
type Property struct {
	Name            string
	Payload         []byte
	NextSiblingProp *Property

	// Index is this property's position in the owning Tree's arena.
	Index int
}

// Stat summarizes a node's immediate shape, mirroring a directory stat call.
type Stat struct {
	Name       string
	NumChild   int
	NumProp    int
	NumSibling int
	HasPhandle bool
}

// StatNode computes a Stat for n by walking its immediate children,
// properties, and its parent's child list. It does not recurse into
// grandchildren. The synthetic, empty-named root is reported as "/".
// NumSibling is the full length of n's parent's child list, inclusive of
// n itself. A top-level node (no Parent) has no addressable chain head
// to count backward from, so NumSibling there only counts n and any
// further top-level nodes chained after it through NextSibling.
func StatNode(n *Node) Stat {
	name := n.Name
	if name == "" {
		name = "/"
	}
	s := Stat{Name: name, HasPhandle: n.Phandle != 0}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.NumChild++
	}
	for p := n.FirstProp; p != nil; p = p.NextSiblingProp {
		s.NumProp++
	}

	chainHead := n
	if n.Parent != nil {
		chainHead = n.Parent.FirstChild
	}
	for c := chainHead; c != nil; c = c.NextSibling {
		s.NumSibling++
	}
	return s
}

// FindChild returns the direct child of n named name, or nil.
func (n *Node) FindChild(name string) *Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindProp returns the property named name on n, or nil.
func (n *Node) FindProp(name string) *Property {
	for p := n.FirstProp; p != nil; p = p.NextSiblingProp {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Prop returns the i'th property of n in internal list order (the reverse
// of on-wire declaration order), or nil if i is out of range.
func (n *Node) Prop(i int) *Property {
	p := n.FirstProp
	for ; p != nil && i > 0; i-- {
		p = p.NextSiblingProp
	}
	return p
}

// Stat summarizes n's immediate children and properties.
func (n *Node) Stat() Stat { return StatNode(n) }

// Find resolves a slash-separated path (e.g. "/soc/uart") starting from n,
// which must be the tree root for an absolute path to make sense. Leading
// and repeated slashes are collapsed and an empty trailing segment (a
// trailing slash) is ignored. Unlike FindChild, each segment matches a
// child's name up to but not including any "@" unit-address separator, so
// "uart" matches a child literally named "uart@10000000".
func (n *Node) Find(path string) *Node {
	cur := n
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '/' {
			continue
		}
		seg := path[start:i]
		start = i + 1
		if seg == "" {
			continue
		}
		cur = cur.findChildByBaseName(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// findChildByBaseName returns the direct child of n whose name, truncated
// at the first "@", equals name.
func (n *Node) findChildByBaseName(name string) *Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		base := c.Name
		if at := strings.IndexByte(base, '@'); at >= 0 {
			base = base[:at]
		}
		if base == name {
			return c
		}
	}
	return nil
}
