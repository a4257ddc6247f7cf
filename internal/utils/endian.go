package utils

import "encoding/binary"

// BE32 reads a single 32-bit cell from the structure block in the wire's
// mandatory big-endian order. The FDT format carries no per-file
// endianness flag, so there is no host-order branch to take here.
func BE32(cells []byte, cellIndex int) uint32 {
	off := cellIndex * 4
	return binary.BigEndian.Uint32(cells[off : off+4])
}

// PutBE32 writes v as a big-endian 32-bit cell into cells at cellIndex.
func PutBE32(cells []byte, cellIndex int, v uint32) {
	off := cellIndex * 4
	binary.BigEndian.PutUint32(cells[off:off+4], v)
}

// BE64FromCells assembles a 64-bit value from two consecutive big-endian
// 32-bit cells, most-significant cell first, per the cell-decoding
// convention for wide property values.
func BE64FromCells(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}
