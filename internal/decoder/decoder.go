// Package decoder turns a flattened device tree blob into the in-memory
// tree model: it validates the header, counts tokens in a sizing pre-pass,
// then walks the structure block a second time building nodes and
// properties directly into a pre-sized arena.
package decoder

import (
	"encoding/binary"
	"fmt"

	"github.com/scigolib/fdt/internal/model"
	"github.com/scigolib/fdt/internal/utils"
)

const (
	headerSize   = 40
	magicValue   = 0xD00DFEED
	wireVersion  = 17
	compatVers16 = 16
)

// Header is the fixed 40-byte big-endian blob header.
type Header struct {
	Magic           uint32
	TotalSize       uint32
	OffDtStruct     uint32
	OffDtStrings    uint32
	OffMemRsvmap    uint32
	Version         uint32
	LastCompVersion uint32
	BootCPUIDPhys   uint32
	SizeDtStrings   uint32
	SizeDtStruct    uint32
}

// ReservedMemEntry is one entry from the reserved-memory map, terminated by
// an all-zero sentinel entry that is not itself returned.
type ReservedMemEntry struct {
	Address uint64
	Size    uint64
}

// ParseHeader validates and decodes the 40-byte header at the start of
// blob.
func ParseHeader(blob []byte) (Header, error) {
	var h Header
	if len(blob) < headerSize {
		return h, utils.WrapError("parsing header", fmt.Errorf("blob shorter than %d-byte header", headerSize))
	}

	be := binary.BigEndian.Uint32
	h = Header{
		Magic:           be(blob[0:4]),
		TotalSize:       be(blob[4:8]),
		OffDtStruct:     be(blob[8:12]),
		OffDtStrings:    be(blob[12:16]),
		OffMemRsvmap:    be(blob[16:20]),
		Version:         be(blob[20:24]),
		LastCompVersion: be(blob[24:28]),
		BootCPUIDPhys:   be(blob[28:32]),
		SizeDtStrings:   be(blob[32:36]),
		SizeDtStruct:    be(blob[36:40]),
	}

	if h.Magic != magicValue {
		return h, utils.WrapError("parsing header", fmt.Errorf("%w: got 0x%x, want 0x%x", utils.ErrBadMagic, h.Magic, uint32(magicValue)))
	}
	if h.Version < compatVers16 {
		return h, utils.WrapError("parsing header", fmt.Errorf("%w: version %d is below the minimum supported %d", utils.ErrUnsupportedVersion, h.Version, uint32(compatVers16)))
	}
	if h.LastCompVersion > wireVersion {
		return h, utils.WrapError("parsing header", fmt.Errorf("%w: last_comp_version %d exceeds supported %d", utils.ErrUnsupportedVersion, h.LastCompVersion, uint32(wireVersion)))
	}
	if uint64(h.TotalSize) > uint64(len(blob)) {
		return h, utils.WrapError("parsing header", fmt.Errorf("total_size %d exceeds blob length %d", h.TotalSize, len(blob)))
	}
	return h, nil
}

// ParseReservedMem decodes the reserved-memory map starting at offset off,
// stopping at the all-zero sentinel entry.
func ParseReservedMem(blob []byte, off uint32) ([]ReservedMemEntry, error) {
	var entries []ReservedMemEntry
	pos := int64(off)
	for {
		if pos+16 > int64(len(blob)) {
			return nil, utils.WrapError("parsing reserved memory map", fmt.Errorf("truncated entry at offset %d", pos))
		}
		addr := binary.BigEndian.Uint64(blob[pos : pos+8])
		size := binary.BigEndian.Uint64(blob[pos+8 : pos+16])
		pos += 16
		if addr == 0 && size == 0 {
			return entries, nil
		}
		entries = append(entries, ReservedMemEntry{Address: addr, Size: size})
	}
}

// Parse decodes blob end to end: header, sizing pre-pass, then the real
// structure-block walk that builds the tree. logger may be nil; when set,
// it receives recoverable warnings and the message of any returned error.
func Parse(blob []byte, logger model.Logger) (tree *model.Tree, err error) {
	// Every error that ends the parse is also reported to logger.
	defer func() {
		if err != nil && logger != nil {
			logger.OnError(err.Error())
		}
	}()

	h, err := ParseHeader(blob)
	if err != nil {
		return nil, err
	}

	if uint64(h.OffDtStruct)+uint64(h.SizeDtStruct) > uint64(len(blob)) {
		return nil, utils.WrapError("parsing structure block", fmt.Errorf("structure block exceeds blob bounds"))
	}
	if uint64(h.OffDtStrings)+uint64(h.SizeDtStrings) > uint64(len(blob)) {
		return nil, utils.WrapError("parsing strings block", fmt.Errorf("strings block exceeds blob bounds"))
	}
	if err := utils.ValidateBufferSize(uint64(h.SizeDtStruct), utils.MaxStructureSize, "structure block"); err != nil {
		return nil, utils.WrapError("parsing structure block", err)
	}
	if h.SizeDtStrings > 0 {
		if err := utils.ValidateBufferSize(uint64(h.SizeDtStrings), utils.MaxStringsSize, "strings block"); err != nil {
			return nil, utils.WrapError("parsing strings block", err)
		}
	}

	structure := blob[h.OffDtStruct : h.OffDtStruct+h.SizeDtStruct]
	strings_ := blob[h.OffDtStrings : h.OffDtStrings+h.SizeDtStrings]

	nNode, nProp, err := model.Sizing(structure)
	if err != nil {
		return nil, utils.WrapError("sizing structure block", err)
	}

	arena := model.NewArena(nNode, nProp)
	d := &decodeState{
		structure: structure,
		strings:   strings_,
		arena:     arena,
		logger:    logger,
	}
	if d.logger == nil {
		d.logger = model.NopLogger{}
	}

	root, err := d.parseTree()
	if err != nil {
		return nil, err
	}

	return model.NewTree(root, arena, d.logger), nil
}

type decodeState struct {
	structure []byte
	strings   []byte
	arena     *model.Arena
	logger    model.Logger
	pos       int
}

func (d *decodeState) nameAt(nameoff uint32) (string, error) {
	if int(nameoff) >= len(d.strings) {
		return "", fmt.Errorf("name offset %d exceeds strings block", nameoff)
	}
	end := int(nameoff)
	for end < len(d.strings) && d.strings[end] != 0 {
		end++
	}
	return string(d.strings[nameoff:end]), nil
}

// parseTree walks the top level of the structure block. The format allows
// more than one top-level BEGIN_NODE before END; the parser tolerates it,
// prepending each to the chain exactly as parseNode does for children, and
// returns the chain head (the last one parsed) as the tree root.
func (d *decodeState) parseTree() (*model.Node, error) {
	var head *model.Node

	for {
		tok, ok := d.peekToken()
		if !ok {
			return nil, fmt.Errorf("structure block: %w: missing terminating END tag", utils.ErrUnterminatedNode)
		}
		switch tok {
		case model.TokenNop:
			d.pos += 4
			continue
		case model.TokenBeginNode:
			n, err := d.parseNode(nil)
			if err != nil {
				return nil, err
			}
			n.NextSibling = head
			head = n
		case model.TokenEnd:
			d.pos += 4
			if head == nil {
				return nil, fmt.Errorf("structure block: no top-level node")
			}
			return head, nil
		default:
			return nil, fmt.Errorf("structure block: unexpected token 0x%x at top level, offset %d", tok, d.pos)
		}
	}
}

func (d *decodeState) peekToken() (uint32, bool) {
	if d.pos+4 > len(d.structure) {
		return 0, false
	}
	return binary.BigEndian.Uint32(d.structure[d.pos : d.pos+4]), true
}

// parseNode consumes a BEGIN_NODE token already confirmed present at
// d.pos, parses its name, properties, and children recursively, and
// consumes the matching END_NODE.
func (d *decodeState) parseNode(parent *model.Node) (*model.Node, error) {
	d.pos += 4 // BEGIN_NODE

	nameEnd := d.pos
	for nameEnd < len(d.structure) && d.structure[nameEnd] != 0 {
		nameEnd++
	}
	if nameEnd >= len(d.structure) {
		return nil, fmt.Errorf("structure block: %w: unterminated node name at offset %d", utils.ErrUnterminatedNode, d.pos)
	}
	name := string(d.structure[d.pos:nameEnd])
	d.pos = align(nameEnd + 1)

	n, ok := d.arena.AllocNode()
	if !ok {
		return nil, fmt.Errorf("%w: allocating node %q", utils.ErrArenaExhausted, name)
	}
	n.Name = name
	n.Parent = parent

	for {
		tok, ok := d.peekToken()
		if !ok {
			return nil, fmt.Errorf("structure block: %w: missing terminating tag for node %q", utils.ErrUnterminatedNode, name)
		}
		switch tok {
		case model.TokenNop:
			d.pos += 4
			continue

		case model.TokenProp:
			p, err := d.parseProp()
			if err != nil {
				return nil, err
			}
			d.applySpecialProp(n, p)
			p.NextSiblingProp = n.FirstProp
			n.FirstProp = p

		case model.TokenBeginNode:
			child, err := d.parseNode(n)
			if err != nil {
				return nil, err
			}
			child.NextSibling = n.FirstChild
			n.FirstChild = child

		case model.TokenEndNode:
			d.pos += 4
			return n, nil

		case model.TokenEnd:
			return nil, fmt.Errorf("structure block: END tag before END_NODE for %q", name)

		default:
			return nil, fmt.Errorf("structure block: unrecognized token 0x%x inside node %q at offset %d", tok, name, d.pos)
		}
	}
}

func (d *decodeState) parseProp() (*model.Property, error) {
	d.pos += 4 // PROP

	if d.pos+8 > len(d.structure) {
		return nil, fmt.Errorf("structure block: truncated property header at offset %d", d.pos)
	}
	length := binary.BigEndian.Uint32(d.structure[d.pos : d.pos+4])
	nameoff := binary.BigEndian.Uint32(d.structure[d.pos+4 : d.pos+8])
	d.pos += 8

	if length > 0 {
		if err := utils.ValidateBufferSize(uint64(length), utils.MaxPropertyPayload, "property payload"); err != nil {
			return nil, err
		}
	}
	if d.pos+int(length) > len(d.structure) {
		return nil, fmt.Errorf("structure block: property payload overruns block at offset %d", d.pos)
	}

	name, err := d.nameAt(nameoff)
	if err != nil {
		return nil, fmt.Errorf("property name: %w", err)
	}

	p, ok := d.arena.AllocProp()
	if !ok {
		return nil, fmt.Errorf("%w: allocating property %q", utils.ErrArenaExhausted, name)
	}
	p.Name = name
	p.Payload = d.structure[d.pos : d.pos+int(length)]
	d.pos = align(d.pos + int(length))

	return p, nil
}

// applySpecialProp updates the phandle index when n carries a "phandle" or
// the deprecated "linux,phandle" property. Unlike a naive single-tag
// implementation, both names are recognized independently: a node with
// both is indexed under each value it declares (one slot when the values
// agree), and n.Phandle keeps the value parsed last.
//
// Phandles is pre-sized to the node count by the sizing pre-pass: no
// blob can have more distinct phandle values than nodes, so a phandle
// at or beyond that bound is never legitimate. Such a value is dropped
// (logged, node parse continues) rather than grown into, which would
// let a crafted value like 0xFFFFFFFF overflow ph+1 to 0 and allocate a
// zero-length slice.
func (d *decodeState) applySpecialProp(n *model.Node, p *model.Property) {
	if p.Name != "phandle" && p.Name != "linux,phandle" {
		return
	}
	if len(p.Payload) != 4 {
		d.logger.OnError(fmt.Sprintf("node %q: phandle property has unexpected length %d", n.Name, len(p.Payload)))
		return
	}
	ph := binary.BigEndian.Uint32(p.Payload)
	n.Phandle = ph
	if int(ph) >= len(d.arena.Phandles) {
		d.logger.OnError(fmt.Sprintf("node %q: phandle %d exceeds node count %d, dropping", n.Name, ph, len(d.arena.Phandles)))
		return
	}
	if d.arena.Phandles[ph] != nil && d.arena.Phandles[ph] != n {
		d.logger.OnError(fmt.Sprintf("duplicate phandle %d on node %q", ph, n.Name))
	}
	d.arena.Phandles[ph] = n
}

func align(n int) int { return (n + 3) &^ 3 }
