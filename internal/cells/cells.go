// Package cells decodes a property's raw payload according to the handful
// of conventional cell layouts used throughout device tree bindings:
// NUL-separated string lists, flat big-endian integer arrays, and
// address/size tuples whose cell width is given by #address-cells and
// #size-cells siblings.
package cells

import (
	"fmt"

	"github.com/scigolib/fdt/internal/model"
	"github.com/scigolib/fdt/internal/utils"
)

// String returns the index'th NUL-separated string within p's payload and
// true, or "", false if index is out of range.
func String(p *model.Property, index int) (string, bool) {
	if p == nil {
		return "", false
	}
	start := 0
	cur := 0
	for i := 0; i <= len(p.Payload); i++ {
		if i < len(p.Payload) && p.Payload[i] != 0 {
			continue
		}
		if i == len(p.Payload) && start == i {
			// Nothing follows the last NUL (or the payload is empty).
			break
		}
		if cur == index {
			return string(p.Payload[start:i]), true
		}
		cur++
		start = i + 1
	}
	return "", false
}

// Strings splits p's entire payload on NUL bytes into a string list. A
// payload with a trailing NUL (the common case) does not produce a
// spurious empty trailing entry.
func Strings(p *model.Property) []string {
	if p == nil || len(p.Payload) == 0 {
		return nil
	}
	payload := p.Payload
	if payload[len(payload)-1] == 0 {
		payload = payload[:len(payload)-1]
	}
	var out []string
	start := 0
	for i := 0; i <= len(payload); i++ {
		if i < len(payload) && payload[i] != 0 {
			continue
		}
		out = append(out, string(payload[start:i]))
		start = i + 1
	}
	return out
}

// Values decodes p's payload as cellCount-wide big-endian integers packed
// back to back, e.g. a "reg" property under #address-cells = <1>.
func Values(p *model.Property, cellCount int) ([]uint64, error) {
	if p == nil {
		return nil, nil
	}
	if cellCount <= 0 {
		return nil, fmt.Errorf("cell count must be positive, got %d", cellCount)
	}
	strideBytes := cellCount * 4
	if len(p.Payload)%strideBytes != 0 {
		return nil, fmt.Errorf("property %q payload length %d is not a multiple of %d-byte cells", p.Name, len(p.Payload), strideBytes)
	}

	n := len(p.Payload) / strideBytes
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		if cellCount == 2 {
			// The common case (e.g. a 64-bit "reg" address under
			// #address-cells = <2>) is assembled with BE64FromCells
			// instead of the generic shift loop below.
			hi := utils.BE32(p.Payload, i*2)
			lo := utils.BE32(p.Payload, i*2+1)
			out[i] = utils.BE64FromCells(hi, lo)
			continue
		}
		var v uint64
		for c := 0; c < cellCount; c++ {
			off := i*strideBytes + c*4
			v = v<<32 | uint64(utils.BE32(p.Payload, off/4))
		}
		out[i] = v
	}
	return out, nil
}

// Tuples decodes p's payload as a sequence of fixed-shape tuples, each
// component layout[k] cells wide (e.g. {addressCells, sizeCells} for a
// "reg" property, or {addressCells, addressCells, sizeCells} for "ranges").
// Each returned tuple has len(layout) uint64 values, one per component.
func Tuples(p *model.Property, layout []int) ([][]uint64, error) {
	if p == nil {
		return nil, nil
	}
	stride, err := utils.CalculateCellStride(layout)
	if err != nil {
		return nil, err
	}
	strideBytes := stride * 4
	if strideBytes == 0 || len(p.Payload)%strideBytes != 0 {
		return nil, fmt.Errorf("property %q payload length %d is not a multiple of tuple stride %d bytes", p.Name, len(p.Payload), strideBytes)
	}

	n := len(p.Payload) / strideBytes
	out := make([][]uint64, n)
	for i := 0; i < n; i++ {
		tuple := make([]uint64, len(layout))
		cellPos := i * stride
		for k, width := range layout {
			var v uint64
			for c := 0; c < width; c++ {
				v = v<<32 | uint64(utils.BE32(p.Payload, cellPos+c))
			}
			tuple[k] = v
			cellPos += width
		}
		out[i] = tuple
	}
	return out, nil
}

// Pairs decodes p as (addressCells, sizeCells)-wide tuples.
func Pairs(p *model.Property, addressCells, sizeCells int) ([][2]uint64, error) {
	raw, err := Tuples(p, []int{addressCells, sizeCells})
	if err != nil || raw == nil {
		return nil, err
	}
	out := make([][2]uint64, len(raw))
	for i, t := range raw {
		out[i] = [2]uint64{t[0], t[1]}
	}
	return out, nil
}

// Triplets decodes p as three-component tuples, e.g. child-address,
// parent-address, size for a "ranges" property.
func Triplets(p *model.Property, c1, c2, c3 int) ([][3]uint64, error) {
	raw, err := Tuples(p, []int{c1, c2, c3})
	if err != nil || raw == nil {
		return nil, err
	}
	out := make([][3]uint64, len(raw))
	for i, t := range raw {
		out[i] = [3]uint64{t[0], t[1], t[2]}
	}
	return out, nil
}

// Quads decodes p as four-component tuples.
func Quads(p *model.Property, c1, c2, c3, c4 int) ([][4]uint64, error) {
	raw, err := Tuples(p, []int{c1, c2, c3, c4})
	if err != nil || raw == nil {
		return nil, err
	}
	out := make([][4]uint64, len(raw))
	for i, t := range raw {
		out[i] = [4]uint64{t[0], t[1], t[2], t[3]}
	}
	return out, nil
}

// AddressSizeCells reads the conventional #address-cells/#size-cells
// properties from n, defaulting to 2 and 1 respectively per the FDT
// specification when either is absent.
func AddressSizeCells(n *model.Node) (addressCells, sizeCells int) {
	addressCells, sizeCells = 2, 1
	if p := n.FindProp("#address-cells"); p != nil {
		if v, err := Values(p, 1); err == nil && len(v) == 1 {
			addressCells = int(v[0])
		}
	}
	if p := n.FindProp("#size-cells"); p != nil {
		if v, err := Values(p, 1); err == nil && len(v) == 1 {
			sizeCells = int(v[0])
		}
	}
	return addressCells, sizeCells
}
