package cells

import (
	"testing"

	"github.com/scigolib/fdt/internal/model"
	"github.com/stretchr/testify/require"
)

func prop(name string, payload []byte) *model.Property {
	return &model.Property{Name: name, Payload: payload}
}

func TestString(t *testing.T) {
	p := prop("compatible", []byte("vendor,chip\x00generic,chip\x00"))
	s, ok := String(p, 0)
	require.True(t, ok)
	require.Equal(t, "vendor,chip", s)

	s, ok = String(p, 1)
	require.True(t, ok)
	require.Equal(t, "generic,chip", s)

	_, ok = String(p, 2)
	require.False(t, ok)
}

func TestStrings(t *testing.T) {
	p := prop("compatible", []byte("a\x00b\x00c\x00"))
	require.Equal(t, []string{"a", "b", "c"}, Strings(p))

	require.Nil(t, Strings(prop("empty", nil)))
}

func TestStrings_NoTrailingNul(t *testing.T) {
	p := prop("compatible", []byte("a\x00b"))
	require.Equal(t, []string{"a", "b"}, Strings(p))
}

func TestValues_SingleCell(t *testing.T) {
	p := prop("#size-cells", []byte{0x00, 0x00, 0x00, 0x01})
	vals, err := Values(p, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, vals)
}

func TestValues_TwoCells64Bit(t *testing.T) {
	p := prop("reg-addr", []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00})
	vals, err := Values(p, 2)
	require.NoError(t, err)
	require.Equal(t, []uint64{0x100000000}, vals)
}

func TestValues_BadStride(t *testing.T) {
	p := prop("bad", []byte{0x00, 0x00, 0x00})
	_, err := Values(p, 1)
	require.Error(t, err)
}

func TestValues_NilProperty(t *testing.T) {
	vals, err := Values(nil, 2)
	require.NoError(t, err)
	require.Nil(t, vals)
}

func TestTuples_NilProperty(t *testing.T) {
	tuples, err := Tuples(nil, []int{2, 1})
	require.NoError(t, err)
	require.Nil(t, tuples)
}

func TestPairs_NilProperty(t *testing.T) {
	pairs, err := Pairs(nil, 2, 1)
	require.NoError(t, err)
	require.Nil(t, pairs)
}

func TestPairs_AddressSizeCells2_1(t *testing.T) {
	p := prop("reg", []byte{
		0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, // address = 0x10000000
		0x00, 0x00, 0x10, 0x00, // size = 0x1000
	})
	pairs, err := Pairs(p, 2, 1)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.Equal(t, uint64(0x10000000), pairs[0][0])
	require.Equal(t, uint64(0x1000), pairs[0][1])
}

func TestTriplets_Ranges(t *testing.T) {
	p := prop("ranges", make([]byte, 4*3*2)) // two triplets of 1-cell components
	triplets, err := Triplets(p, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, triplets, 2)
}

func TestQuads(t *testing.T) {
	p := prop("interrupts-extended", make([]byte, 4*4))
	quads, err := Quads(p, 1, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, quads, 1)
}

func TestAddressSizeCells_Defaults(t *testing.T) {
	n := &model.Node{Name: "soc"}
	a, s := AddressSizeCells(n)
	require.Equal(t, 2, a)
	require.Equal(t, 1, s)
}

func TestAddressSizeCells_Explicit(t *testing.T) {
	n := &model.Node{Name: "soc"}
	ac := prop("#address-cells", []byte{0x00, 0x00, 0x00, 0x01})
	sc := prop("#size-cells", []byte{0x00, 0x00, 0x00, 0x01})
	ac.NextSiblingProp = sc
	n.FirstProp = ac

	a, s := AddressSizeCells(n)
	require.Equal(t, 1, a)
	require.Equal(t, 1, s)
}
