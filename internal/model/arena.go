package model

import (
	"encoding/binary"
	"fmt"

	"github.com/scigolib/fdt/internal/utils"
)

// Arena backs an entire parsed tree with three flat slices, sized once by a
// token-counting pre-pass over the structure block. Nodes and properties
// are handed out by index rather than grown incrementally, so no pointer
// into the arena is ever invalidated by a later allocation.
type Arena struct {
	Nodes    []Node
	Props    []Property
	Phandles []*Node

	nextNode int
	nextProp int
}

// Sizing walks the structure block once, counting BEGIN_NODE and PROP
// tokens, without building any tree. The counts size the arena allocation
// that the real parse pass then fills in-place.
func Sizing(structure []byte) (nNode, nProp int, err error) {
	off := 0
	for {
		if off+4 > len(structure) {
			return 0, 0, fmt.Errorf("structure block: %w: missing terminating END tag", utils.ErrUnterminatedNode)
		}
		tok := binary.BigEndian.Uint32(structure[off : off+4])
		off += 4

		switch tok {
		case TokenNop:
			continue

		case TokenBeginNode:
			nNode++
			nameEnd := off
			for nameEnd < len(structure) && structure[nameEnd] != 0 {
				nameEnd++
			}
			if nameEnd >= len(structure) {
				return 0, 0, fmt.Errorf("structure block: %w: unterminated node name at offset %d", utils.ErrUnterminatedNode, off)
			}
			off = align4(nameEnd + 1)

		case TokenEndNode:
			continue

		case TokenProp:
			nProp++
			if off+8 > len(structure) {
				return 0, 0, fmt.Errorf("structure block: truncated property header at offset %d", off)
			}
			length := binary.BigEndian.Uint32(structure[off : off+4])
			off += 8
			end, addErr := utils.SafeMultiply(uint64(1), uint64(length))
			if addErr != nil {
				return 0, 0, fmt.Errorf("property length overflow: %w", addErr)
			}
			off = align4(off + int(end))
			if off > len(structure) {
				return 0, 0, fmt.Errorf("structure block: property payload overruns block at offset %d", off)
			}

		case TokenEnd:
			return nNode, nProp, nil

		default:
			return 0, 0, fmt.Errorf("structure block: unrecognized token 0x%x at offset %d", tok, off-4)
		}
	}
}

// NewArena allocates flat storage sized exactly for nNode nodes and nProp
// properties. Phandles is pre-sized to nNode: no valid blob can declare
// more distinct phandle values than it has nodes, so a phandle at or
// beyond nNode is never a legitimate index and is rejected rather than
// grown into.
func NewArena(nNode, nProp int) *Arena {
	return &Arena{
		Nodes:    make([]Node, nNode),
		Props:    make([]Property, nProp),
		Phandles: make([]*Node, nNode),
	}
}

// AllocNode hands out the next unused Node slot. The second return value
// is false if the arena is exhausted, which indicates the sizing pre-pass
// and the real parse pass disagreed about the token stream.
func (a *Arena) AllocNode() (*Node, bool) {
	if a.nextNode >= len(a.Nodes) {
		return nil, false
	}
	n := &a.Nodes[a.nextNode]
	n.Index = a.nextNode
	a.nextNode++
	return n, true
}

// AllocProp hands out the next unused Property slot.
func (a *Arena) AllocProp() (*Property, bool) {
	if a.nextProp >= len(a.Props) {
		return nil, false
	}
	p := &a.Props[a.nextProp]
	p.Index = a.nextProp
	a.nextProp++
	return p, true
}

// Reset rewinds the allocation cursors without releasing the backing
// slices, so a caller re-parsing into the same arena does not reallocate.
func (a *Arena) Reset() {
	a.nextNode = 0
	a.nextProp = 0
}
