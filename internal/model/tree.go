package model

import "bytes"

// Logger is the host error-reporting sink the decoder calls into for
// recoverable irregularities (duplicate phandles, oddly sized phandle
// properties) found during parsing, and for any error that ends a parse. It mirrors the teacher's preference
// for plain contextual errors over a structured logging dependency in the
// core library.
type Logger interface {
	OnError(msg string)
}

// NopLogger discards everything. It is the default when no Logger is
// supplied.
type NopLogger struct{}

func (NopLogger) OnError(string) {}

// Allocator is an optional host collaborator a Tree can release its arena
// storage back to when the caller manages a static buffer pool rather than
// letting the garbage collector reclaim it. Most callers never need one;
// Arena.Reset already supports reusing a Tree's backing storage without it.
type Allocator interface {
	Release(buf []byte)
}

// Tree is a fully parsed device tree: a root Node plus the Arena that owns
// every Node and Property reachable from it.
type Tree struct {
	root      *Node
	arena     *Arena
	logger    Logger
	allocator Allocator

	// ownedNames collects name/path byte slices synthesized during
	// mutation (see mutate.go) that do not alias the original blob, so
	// they stay reachable for the lifetime of the Tree instead of being
	// collected the moment the constructing function returns.
	ownedNames [][]byte
}

// SetAllocator attaches a host Allocator. Release then forwards to it
// instead of being a no-op.
func (t *Tree) SetAllocator(a Allocator) { t.allocator = a }

// Release hands the tree's source blob back to the configured Allocator,
// if any. With no Allocator configured this is a no-op; Go's garbage
// collector reclaims the arena regardless once the Tree is unreferenced.
func (t *Tree) Release(blob []byte) {
	if t.allocator != nil {
		t.allocator.Release(blob)
	}
}

// NewTree wraps root and arena into a Tree. A nil logger is replaced with
// NopLogger.
func NewTree(root *Node, arena *Arena, logger Logger) *Tree {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Tree{root: root, arena: arena, logger: logger}
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node { return t.root }

// Arena exposes the tree's backing storage. The encoder does not use it;
// it walks the tree from Root().
func (t *Tree) Arena() *Arena { return t.arena }

// Logger returns the tree's logger.
func (t *Tree) Logger() Logger { return t.logger }

// ownName retains buf for the lifetime of the tree and returns it, used by
// mutation helpers that synthesize a name or payload not present in the
// original blob.
func (t *Tree) ownName(buf []byte) []byte {
	t.ownedNames = append(t.ownedNames, buf)
	return buf
}

// FindPhandle returns the node whose phandle equals ph, or nil. Lookup is
// O(1) against the dense phandle index built during parsing.
func (t *Tree) FindPhandle(ph uint32) *Node {
	if ph == 0 || int(ph) >= len(t.arena.Phandles) {
		return nil
	}
	return t.arena.Phandles[ph]
}

// FindCompatible returns the next node strictly after start, in arena
// (depth-first parse) order, whose "compatible" property contains the
// NUL-separated string s. A nil start begins the scan at the tree root.
func (t *Tree) FindCompatible(start *Node, s string) *Node {
	startIdx := 0
	if start != nil {
		startIdx = start.Index
	}
	needle := []byte(s)
	for i := startIdx; i < len(t.arena.Nodes); i++ {
		n := &t.arena.Nodes[i]
		if start != nil && i == startIdx {
			continue
		}
		p := n.FindProp("compatible")
		if p == nil {
			continue
		}
		if containsNulString(p.Payload, needle) {
			return n
		}
	}
	return nil
}

// containsNulString reports whether payload, a NUL-separated string list,
// contains needle as one of its entries.
func containsNulString(payload, needle []byte) bool {
	start := 0
	for i := 0; i <= len(payload); i++ {
		if i < len(payload) && payload[i] != 0 {
			continue
		}
		if bytes.Equal(payload[start:i], needle) {
			return true
		}
		start = i + 1
	}
	return false
}
