//go:build fdtmutate

package model

import (
	"fmt"

	"github.com/scigolib/fdt/internal/utils"
)

// CreateChild adds a new child named name to parent, prepending it to
// parent's child list. name is copied into tree's owned-name list since
// arena-resident nodes otherwise only ever hold names from the original
// blob.
func (t *Tree) CreateChild(parent *Node, name string) (*Node, error) {
	if parent.FindChild(name) != nil {
		return nil, fmt.Errorf("creating child %q: already exists under %q", name, parent.Name)
	}
	n := &Node{Name: string(t.ownName([]byte(name))), Parent: parent}
	n.NextSibling = parent.FirstChild
	parent.FirstChild = n
	return n, nil
}

// CreateSibling inserts a new node into node's parent's child list (or the
// tree's top-level chain if node is the root), alongside node.
func (t *Tree) CreateSibling(node *Node, name string) (*Node, error) {
	if node.Parent == nil {
		for s := t.root; s != nil; s = s.NextSibling {
			if s.Name == name {
				return nil, fmt.Errorf("creating sibling %q: already exists at top level", name)
			}
		}
		n := &Node{Name: string(t.ownName([]byte(name)))}
		n.NextSibling = t.root
		t.root = n
		return n, nil
	}
	return t.CreateChild(node.Parent, name)
}

// CreateProp prepends a new property to n's property list with an empty
// payload; callers
// fill it in with Property.WriteValues/WriteString/WriteBytes.
func (n *Node) CreateProp(t *Tree, name string) (*Property, error) {
	if n.FindProp(name) != nil {
		return nil, fmt.Errorf("creating property %q: already exists on node %q", name, n.Name)
	}
	p := &Property{Name: string(t.ownName([]byte(name)))}
	p.NextSiblingProp = n.FirstProp
	n.FirstProp = p
	return p, nil
}

// FindOrCreateNode resolves path, creating any missing intermediate nodes
// (and the final segment) as empty children along the way.
func (t *Tree) FindOrCreateNode(path string) (*Node, error) {
	cur := t.root
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
		if child := cur.FindChild(seg); child != nil {
			cur = child
			continue
		}
		child, err := t.CreateChild(cur, seg)
		if err != nil {
			return nil, err
		}
		cur = child
	}
	return cur, nil
}

// DestroyNode unlinks n from its parent's child list, or the tree's
// top-level chain if n has no parent, and clears its phandle index slot.
func (t *Tree) DestroyNode(n *Node) error {
	if n.Phandle != 0 && int(n.Phandle) < len(t.arena.Phandles) && t.arena.Phandles[n.Phandle] == n {
		t.arena.Phandles[n.Phandle] = nil
	}

	if n.Parent == nil {
		if t.root == n {
			t.root = n.NextSibling
			return nil
		}
		for s := t.root; s != nil; s = s.NextSibling {
			if s.NextSibling == n {
				s.NextSibling = n.NextSibling
				return nil
			}
		}
		return fmt.Errorf("destroying node %q: not found in top-level chain", n.Name)
	}

	parent := n.Parent
	if parent.FirstChild == n {
		parent.FirstChild = n.NextSibling
		return nil
	}
	for s := parent.FirstChild; s != nil; s = s.NextSibling {
		if s.NextSibling == n {
			s.NextSibling = n.NextSibling
			return nil
		}
	}
	return fmt.Errorf("destroying node %q: not found under parent %q", n.Name, parent.Name)
}

// DestroyProp unlinks the named property from n's property list.
func (n *Node) DestroyProp(name string) error {
	if n.FirstProp != nil && n.FirstProp.Name == name {
		n.FirstProp = n.FirstProp.NextSiblingProp
		return nil
	}
	for p := n.FirstProp; p != nil; p = p.NextSiblingProp {
		if p.NextSiblingProp != nil && p.NextSiblingProp.Name == name {
			p.NextSiblingProp = p.NextSiblingProp.NextSiblingProp
			return nil
		}
	}
	return fmt.Errorf("destroying property %q: not found on node %q", name, n.Name)
}

// WriteBytes replaces p's payload with a copy of data, owned by tree
// rather than aliasing the original structure block.
func (p *Property) WriteBytes(t *Tree, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	p.Payload = t.ownName(buf)
}

// WriteString replaces p's payload with a single NUL-terminated string.
func (p *Property) WriteString(t *Tree, s string) {
	p.WriteBytes(t, append([]byte(s), 0))
}

// WriteValues replaces p's payload with a sequence of cellCount-wide
// big-endian integers.
func (p *Property) WriteValues(t *Tree, cellCount int, values []uint64) error {
	if cellCount <= 0 {
		return fmt.Errorf("cell count must be positive, got %d", cellCount)
	}
	buf := make([]byte, len(values)*cellCount*4)
	for i, v := range values {
		for c := cellCount - 1; c >= 0; c-- {
			utils.PutBE32(buf, i*cellCount+c, uint32(v))
			v >>= 32
		}
	}
	p.Payload = t.ownName(buf)
	return nil
}
