// Package encoder serializes an in-memory tree back into a flattened
// device tree blob, in two passes: Size computes the exact output length,
// Encode then writes into a caller-provided buffer of that length. Keeping
// sizing and emission as separate passes lets a caller allocate exactly
// once instead of growing a buffer incrementally.
package encoder

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/scigolib/fdt/internal/model"
	"github.com/scigolib/fdt/internal/utils"
)

const (
	headerSize   = 40
	magicValue   = 0xD00DFEED
	wireVersion  = 17
	compatVers16 = 16
	rsvEntrySize = 16
)

// ErrBufferTooSmall is returned by Encode, together with the required
// size, when buf is shorter than the size Size reports.
var ErrBufferTooSmall = errors.New("encoder: destination buffer too small")

// ErrEncodeOverflow is returned if emission runs past the size Size
// computed for the same tree, which would indicate Size and Encode
// disagreed about the tree's shape rather than a plain too-small buffer.
var ErrEncodeOverflow = errors.New("encoder: emission overran computed size")

// Options controls values the in-memory tree does not itself carry.
type Options struct {
	BootCPUIDPhys uint32
}

// Size computes the exact byte length of tree's serialized form: header,
// a single reserved-memory sentinel entry, the structure block (with its
// BEGIN_NODE/PROP/END_NODE/END tokens and 4-byte alignment padding), and
// the deduplicated strings block.
func Size(tree *model.Tree) (uint64, error) {
	strTab := newStringTable()
	structLen, err := walkSize(tree.Root(), strTab)
	if err != nil {
		return 0, err
	}
	structLen += 4 // trailing END token

	total := uint64(headerSize) + uint64(rsvEntrySize) + uint64(structLen) + uint64(strTab.size())
	return total, nil
}

// Encode writes tree into buf, which must be at least as large as the
// value Size(tree) returned, and returns the number of bytes written. If
// buf is shorter, nothing is written and Encode returns the required size
// with ErrBufferTooSmall. buf has no alignment requirement.
func Encode(tree *model.Tree, buf []byte, opts Options) (int, error) {
	size, err := Size(tree)
	if err != nil {
		return 0, err
	}
	if uint64(len(buf)) < size {
		return int(size), fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, size, len(buf))
	}

	strTab := newStringTable()
	structLen, err := walkSize(tree.Root(), strTab)
	if err != nil {
		return 0, err
	}
	structLen += 4

	offStruct := uint32(headerSize + rsvEntrySize)
	offStrings := offStruct + uint32(structLen)

	e := &encodeState{buf: buf, pos: int(offStruct), strTab: strTab}
	if err := e.writeNodeChain(tree.Root()); err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint32(buf[e.pos:e.pos+4], model.TokenEnd)
	e.pos += 4

	if uint32(e.pos) != offStrings {
		return 0, fmt.Errorf("%w: structure emission ended at %d, expected %d", ErrEncodeOverflow, e.pos, offStrings)
	}

	strTab.writeTo(buf[offStrings:])

	be := binary.BigEndian
	be.PutUint32(buf[0:4], magicValue)
	be.PutUint32(buf[4:8], uint32(size))
	be.PutUint32(buf[8:12], offStruct)
	be.PutUint32(buf[12:16], offStrings)
	be.PutUint32(buf[16:20], headerSize)
	be.PutUint32(buf[20:24], wireVersion)
	be.PutUint32(buf[24:28], compatVers16)
	be.PutUint32(buf[28:32], opts.BootCPUIDPhys)
	be.PutUint32(buf[32:36], uint32(strTab.size()))
	be.PutUint32(buf[36:40], uint32(structLen))

	// Reserved-memory map: a single all-zero sentinel entry. Mutation of
	// the reserved-memory list is out of scope for the in-memory model.
	for i := headerSize; i < headerSize+rsvEntrySize; i++ {
		buf[i] = 0
	}

	return int(size), nil
}

func walkSize(n *model.Node, strTab *stringTable) (int, error) {
	if n == nil {
		return 0, nil
	}
	total := 0
	for cur := n; cur != nil; cur = cur.NextSibling {
		sz, err := nodeSize(cur, strTab)
		if err != nil {
			return 0, err
		}
		total += sz
	}
	return total, nil
}

func nodeSize(n *model.Node, strTab *stringTable) (int, error) {
	size := 4 // BEGIN_NODE
	size += align4(len(n.Name) + 1)

	for p := n.FirstProp; p != nil; p = p.NextSiblingProp {
		strTab.intern(p.Name)
		size += 12 // PROP token + len + nameoff
		size += align4(len(p.Payload))
	}

	childSize, err := walkSize(n.FirstChild, strTab)
	if err != nil {
		return 0, err
	}
	size += childSize
	size += 4 // END_NODE

	if err := utils.ValidateBufferSize(uint64(size), utils.MaxStructureSize, "structure block"); err != nil {
		return 0, err
	}
	return size, nil
}

type encodeState struct {
	buf    []byte
	pos    int
	strTab *stringTable
}

// writeNodeChain emits a NextSibling chain in reverse of its in-memory
// list order. The decoder builds that list by prepending as it parses, so
// list order is the reverse of on-wire order; reversing again here
// restores on-wire order and is what keeps parse/serialize/parse stable.
func (e *encodeState) writeNodeChain(n *model.Node) error {
	var chain []*model.Node
	for cur := n; cur != nil; cur = cur.NextSibling {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if err := e.writeNode(chain[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *encodeState) writeNode(n *model.Node) error {
	binary.BigEndian.PutUint32(e.buf[e.pos:e.pos+4], model.TokenBeginNode)
	e.pos += 4

	copy(e.buf[e.pos:], n.Name)
	e.pos += align4(len(n.Name) + 1)

	var props []*model.Property
	for p := n.FirstProp; p != nil; p = p.NextSiblingProp {
		props = append(props, p)
	}
	for i := len(props) - 1; i >= 0; i-- {
		p := props[i]
		binary.BigEndian.PutUint32(e.buf[e.pos:e.pos+4], model.TokenProp)
		e.pos += 4
		binary.BigEndian.PutUint32(e.buf[e.pos:e.pos+4], uint32(len(p.Payload)))
		e.pos += 4
		nameoff := e.strTab.intern(p.Name)
		binary.BigEndian.PutUint32(e.buf[e.pos:e.pos+4], nameoff)
		e.pos += 4
		copy(e.buf[e.pos:], p.Payload)
		e.pos += align4(len(p.Payload))
	}

	if err := e.writeNodeChain(n.FirstChild); err != nil {
		return err
	}

	binary.BigEndian.PutUint32(e.buf[e.pos:e.pos+4], model.TokenEndNode)
	e.pos += 4
	return nil
}

func align4(n int) int { return (n + 3) &^ 3 }

// stringTable deduplicates property names into a single strings block,
// matching how a real encoder avoids repeating a name like "compatible"
// once per node that carries it.
type stringTable struct {
	offsets map[string]uint32
	order   []string
	cursor  uint32
}

func newStringTable() *stringTable {
	return &stringTable{offsets: make(map[string]uint32)}
}

// intern returns the byte offset of name within the strings block,
// registering it on first use.
func (s *stringTable) intern(name string) uint32 {
	if off, ok := s.offsets[name]; ok {
		return off
	}
	off := s.cursor
	s.offsets[name] = off
	s.order = append(s.order, name)
	s.cursor += uint32(len(name)) + 1
	return off
}

func (s *stringTable) size() uint32 { return s.cursor }

func (s *stringTable) writeTo(buf []byte) {
	off := 0
	for _, name := range s.order {
		copy(buf[off:], name)
		off += len(name) + 1 // NUL terminator left zeroed
	}
}
