//go:build fdtmutate

package fdt

// CreateChild adds a new child named name at the head of parent's child
// list and returns it.
// The mutation API is only linked in with the fdtmutate build tag; it is
// optional surface, not part of the default read/serialize path.
func (t *Tree) CreateChild(parent *Node, name string) (*Node, error) {
	return t.inner.CreateChild(parent, name)
}

// CreateSibling inserts a new node alongside node, in its parent's child
// list, or the tree's top-level chain if node is the root.
func (t *Tree) CreateSibling(node *Node, name string) (*Node, error) {
	return t.inner.CreateSibling(node, name)
}

// CreateProp adds a new, empty-payload property named name at the head of
// n's property list.
func CreateProp(t *Tree, n *Node, name string) (*Property, error) {
	return n.CreateProp(t.inner, name)
}

// FindOrCreateNode resolves a slash-separated path from the tree root,
// creating any missing nodes along the way.
func (t *Tree) FindOrCreateNode(path string) (*Node, error) {
	return t.inner.FindOrCreateNode(path)
}

// DestroyNode unlinks n from its parent (or the tree's top-level chain).
func (t *Tree) DestroyNode(n *Node) error {
	return t.inner.DestroyNode(n)
}

// DestroyProp unlinks the named property from n.
func DestroyProp(n *Node, name string) error {
	return n.DestroyProp(name)
}

// WriteBytes replaces p's payload with a copy of data.
func WriteBytes(t *Tree, p *Property, data []byte) {
	p.WriteBytes(t.inner, data)
}

// WriteString replaces p's payload with a single NUL-terminated string.
func WriteString(t *Tree, p *Property, s string) {
	p.WriteString(t.inner, s)
}

// WriteValues replaces p's payload with a sequence of cellCount-wide
// big-endian integers.
func WriteValues(t *Tree, p *Property, cellCount int, values []uint64) error {
	return p.WriteValues(t.inner, cellCount, values)
}
