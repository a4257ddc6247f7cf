package encoder

import (
	"encoding/binary"
	"testing"

	"github.com/scigolib/fdt/internal/decoder"
	"github.com/scigolib/fdt/internal/model"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T) *model.Tree {
	t.Helper()
	arena := model.NewArena(2, 1)

	root, ok := arena.AllocNode()
	require.True(t, ok)
	root.Name = ""

	child, ok := arena.AllocNode()
	require.True(t, ok)
	child.Name = "soc"
	child.Parent = root
	root.FirstChild = child

	p, ok := arena.AllocProp()
	require.True(t, ok)
	p.Name = "compatible"
	p.Payload = []byte("vendor,chip\x00")
	root.FirstProp = p

	return model.NewTree(root, arena, nil)
}

func TestSize_NonZero(t *testing.T) {
	tree := buildTree(t)
	size, err := Size(tree)
	require.NoError(t, err)
	require.Greater(t, size, uint64(headerSize+rsvEntrySize))
}

func TestEncode_BufferTooSmall(t *testing.T) {
	tree := buildTree(t)
	size, err := Size(tree)
	require.NoError(t, err)

	buf := make([]byte, size-1)
	_, err = Encode(tree, buf, Options{})
	require.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestEncode_RoundTrip(t *testing.T) {
	tree := buildTree(t)
	size, err := Size(tree)
	require.NoError(t, err)

	buf := make([]byte, size)
	n, err := Encode(tree, buf, Options{BootCPUIDPhys: 1})
	require.NoError(t, err)
	require.Equal(t, int(size), n)

	reparsed, err := decoder.Parse(buf, nil)
	require.NoError(t, err)

	require.Equal(t, "", reparsed.Root().Name)
	require.NotNil(t, reparsed.Root().FirstProp)
	require.Equal(t, "compatible", reparsed.Root().FirstProp.Name)
	require.Equal(t, []byte("vendor,chip\x00"), reparsed.Root().FirstProp.Payload)

	soc := reparsed.Root().FindChild("soc")
	require.NotNil(t, soc)
}

func putToken(buf []byte, tok uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, tok)
	return append(buf, b...)
}

func putNodeName(buf []byte, name string) []byte {
	buf = append(buf, name...)
	buf = append(buf, 0)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func buildBlobForTest(t *testing.T, structTokens []byte) []byte {
	t.Helper()
	const headerLen = 40
	const rsvLen = 16

	offStruct := uint32(headerLen + rsvLen)
	total := offStruct + uint32(len(structTokens))

	buf := make([]byte, total)
	be := binary.BigEndian
	be.PutUint32(buf[0:4], magicValue)
	be.PutUint32(buf[4:8], total)
	be.PutUint32(buf[8:12], offStruct)
	be.PutUint32(buf[12:16], offStruct+uint32(len(structTokens)))
	be.PutUint32(buf[16:20], headerLen)
	be.PutUint32(buf[20:24], wireVersion)
	be.PutUint32(buf[24:28], compatVers16)
	be.PutUint32(buf[32:36], 0)
	be.PutUint32(buf[36:40], uint32(len(structTokens)))
	copy(buf[offStruct:], structTokens)
	return buf
}

func TestEncode_PreservesParsedSiblingOrder(t *testing.T) {
	// Build the original blob by hand so the tree under test comes from
	// the decoder's own prepend logic, not a hand-assembled arena.
	var st []byte
	st = putToken(nil, model.TokenBeginNode)
	st = putNodeName(st, "")
	st = putToken(st, model.TokenBeginNode)
	st = putNodeName(st, "a")
	st = putToken(st, model.TokenEndNode)
	st = putToken(st, model.TokenBeginNode)
	st = putNodeName(st, "b")
	st = putToken(st, model.TokenEndNode)
	st = putToken(st, model.TokenBeginNode)
	st = putNodeName(st, "c")
	st = putToken(st, model.TokenEndNode)
	st = putToken(st, model.TokenEndNode)
	st = putToken(st, model.TokenEnd)

	blob := buildBlobForTest(t, st)

	original, err := decoder.Parse(blob, nil)
	require.NoError(t, err)

	size, err := Size(original)
	require.NoError(t, err)
	reencoded := make([]byte, size)
	_, err = Encode(original, reencoded, Options{})
	require.NoError(t, err)

	reparsed, err := decoder.Parse(reencoded, nil)
	require.NoError(t, err)

	var names []string
	for c := reparsed.Root().FirstChild; c != nil; c = c.NextSibling {
		names = append(names, c.Name)
	}

	var originalNames []string
	for c := original.Root().FirstChild; c != nil; c = c.NextSibling {
		originalNames = append(originalNames, c.Name)
	}

	require.Equal(t, originalNames, names)
}

func TestEncode_HeaderFields(t *testing.T) {
	tree := buildTree(t)
	size, err := Size(tree)
	require.NoError(t, err)
	buf := make([]byte, size)
	_, err = Encode(tree, buf, Options{})
	require.NoError(t, err)

	h, err := decoder.ParseHeader(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(17), h.Version)
	require.Equal(t, uint32(16), h.LastCompVersion)
}
