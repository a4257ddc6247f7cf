// Package fdt parses, queries, and re-serializes flattened device tree
// (FDT/DTB) blobs: the binary format the Linux kernel boot protocol and
// U-Boot use to describe hardware to a booting kernel.
package fdt

import (
	"github.com/scigolib/fdt/internal/cells"
	"github.com/scigolib/fdt/internal/decoder"
	"github.com/scigolib/fdt/internal/encoder"
	"github.com/scigolib/fdt/internal/model"
)

// Node and Property are the in-memory tree model; see internal/model for
// field documentation. They are aliased here so callers never need to
// import an internal package directly.
type (
	Node     = model.Node
	Property = model.Property
	NodeStat = model.Stat
	Logger   = model.Logger
)

// Tree is a parsed device tree: a Node graph plus the arena that owns it.
type Tree struct {
	inner *model.Tree
}

// Parse decodes an FDT/DTB blob into a Tree. logger, if non-nil, receives
// warnings about recoverable irregularities (duplicate phandles, odd
// phandle property lengths) encountered during the parse, and the message
// of any error that makes the parse fail.
func Parse(blob []byte, logger Logger) (*Tree, error) {
	t, err := decoder.Parse(blob, logger)
	if err != nil {
		return nil, err
	}
	return &Tree{inner: t}, nil
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node { return t.inner.Root() }

// FindPhandle returns the node whose phandle property equals ph, or nil.
func (t *Tree) FindPhandle(ph uint32) *Node { return t.inner.FindPhandle(ph) }

// FindCompatible returns the next node strictly after start (nil meaning
// the scan begins at the root) whose "compatible" property lists s.
func (t *Tree) FindCompatible(start *Node, s string) *Node {
	return t.inner.FindCompatible(start, s)
}

// Stat summarizes n's immediate children and properties.
func Stat(n *Node) NodeStat { return model.StatNode(n) }

// Serialize re-encodes the tree into a DTB blob. bootCPUIDPhys is written
// into the header verbatim; callers that do not care about it can pass 0.
func (t *Tree) Serialize(bootCPUIDPhys uint32) ([]byte, error) {
	size, err := encoder.Size(t.inner)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := encoder.Encode(t.inner, buf, encoder.Options{BootCPUIDPhys: bootCPUIDPhys}); err != nil {
		return nil, err
	}
	return buf, nil
}

// PropString returns the index'th NUL-separated string in p's payload.
func PropString(p *Property, index int) (string, bool) { return cells.String(p, index) }

// PropStrings splits p's entire payload into a string list.
func PropStrings(p *Property) []string { return cells.Strings(p) }

// PropValues decodes p as a sequence of cellCount-wide big-endian
// integers.
func PropValues(p *Property, cellCount int) ([]uint64, error) { return cells.Values(p, cellCount) }

// PropPairs decodes p as (addressCells, sizeCells) tuples, the layout of a
// conventional "reg" property.
func PropPairs(p *Property, addressCells, sizeCells int) ([][2]uint64, error) {
	return cells.Pairs(p, addressCells, sizeCells)
}

// PropTriplets decodes p as three-component tuples, the layout of a
// conventional "ranges" property.
func PropTriplets(p *Property, c1, c2, c3 int) ([][3]uint64, error) {
	return cells.Triplets(p, c1, c2, c3)
}

// PropQuads decodes p as four-component tuples.
func PropQuads(p *Property, c1, c2, c3, c4 int) ([][4]uint64, error) {
	return cells.Quads(p, c1, c2, c3, c4)
}

// AddressSizeCells reads n's #address-cells/#size-cells properties,
// defaulting to 2 and 1 when either is absent.
func AddressSizeCells(n *Node) (addressCells, sizeCells int) { return cells.AddressSizeCells(n) }
