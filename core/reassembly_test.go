package core

import (
	"bytes"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"github.com/renmiamu/dvnet/protocol"
	"github.com/renmiamu/dvnet/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dataHeader(src, dst string, seq, total uint32, payload []byte) *protocol.Header {
	return &protocol.Header{
		Type:     protocol.Data,
		Seq:      seq,
		Total:    total,
		Src:      src,
		Dst:      dst,
		TTL:      state.HopLimit,
		Checksum: protocol.Checksum(payload),
	}
}

// storeTransfer stores segs as transfer id in order and returns the result of
// the last segment
func storeTransfer(t *testing.T, r *Reassembler, id uuid.UUID, segs [][]byte) *CompletedTransfer {
	t.Helper()
	var done *CompletedTransfer
	for seq, p := range segs {
		h := dataHeader("A", "B", uint32(seq), uint32(len(segs)), p)
		h.Transfer = id
		var err error
		done, err = r.Store(h, p)
		require.NoError(t, err)
	}
	return done
}

func newTestReassembler(t *testing.T) (*Reassembler, *state.TransferTables, *state.Env) {
	ncfg := testNetwork(map[state.NodeId]map[state.NodeId]uint32{"A": {"B": 1}}, "A", "B")
	env := testEnv(t, "B", ncfg)
	tables := state.NewTransferTables()
	return NewReassembler(env, tables), tables, env
}

func TestReassembleOutOfOrderWithDuplicates(t *testing.T) {
	r, tables, env := newTestReassembler(t)
	data := make([]byte, 2000)
	rng := rand.New(rand.NewPCG(3, 4))
	for i := range data {
		data[i] = byte(rng.UintN(256))
	}
	segs := Split(data, 512)

	for _, seq := range []uint32{2, 0, 2, 3, 0} {
		res, err := r.Store(dataHeader("A", "B", seq, 4, segs[seq]), segs[seq])
		require.NoError(t, err)
		assert.Nil(t, res)
	}

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, InboundProgress{
		Src:      "A",
		Dst:      "B",
		Total:    4,
		Received: []uint32{0, 2, 3},
		Missing:  []uint32{1},
	}, pending[0])

	done, err := r.Store(dataHeader("A", "B", 1, 4, segs[1]), segs[1])
	require.NoError(t, err)
	require.NotNil(t, done)

	path := filepath.Join(env.RecvDir, "B", "received_from_A")
	assert.Equal(t, path, done.Path)
	assert.Equal(t, 2000, done.Size)
	assert.Equal(t, xxhash.Sum64(data), done.Digest)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	tables.Lock()
	assert.Empty(t, tables.Reassembly)
	tables.Unlock()
	assert.Empty(t, r.Pending())
}

func TestReassembleEmptyFile(t *testing.T) {
	r, _, _ := newTestReassembler(t)
	done, err := r.Store(dataHeader("A", "B", 0, 1, nil), nil)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, 0, done.Size)
	got, err := os.ReadFile(done.Path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReassembleRejectsSeqOutsideTotal(t *testing.T) {
	r, tables, _ := newTestReassembler(t)
	_, err := r.Store(dataHeader("A", "B", 4, 4, []byte("x")), []byte("x"))
	assert.ErrorIs(t, err, protocol.ErrMalformedPacket)

	_, err = r.Store(dataHeader("A", "B", 0, 2, []byte("x")), []byte("x"))
	require.NoError(t, err)
	// the total of the first segment holds for the whole transfer
	_, err = r.Store(dataHeader("A", "B", 2, 3, []byte("y")), []byte("y"))
	assert.ErrorIs(t, err, protocol.ErrMalformedPacket)

	tables.Lock()
	defer tables.Unlock()
	assert.Len(t, tables.Reassembly[state.TransferKey{Src: "A", Dst: "B"}].Segments, 1)
}

func TestLateDuplicateDoesNotReopen(t *testing.T) {
	r, tables, _ := newTestReassembler(t)
	id := uuid.New()
	segs := [][]byte{[]byte("hello "), []byte("world")}
	require.NotNil(t, storeTransfer(t, r, id, segs))

	h := dataHeader("A", "B", 1, 2, segs[1])
	h.Transfer = id
	done, err := r.Store(h, segs[1])
	require.NoError(t, err)
	assert.Nil(t, done)
	tables.Lock()
	assert.Empty(t, tables.Reassembly)
	tables.Unlock()

	// the same bytes under a new id are a new transfer
	next := uuid.New()
	h = dataHeader("A", "B", 0, 2, segs[0])
	h.Transfer = next
	_, err = r.Store(h, segs[0])
	require.NoError(t, err)
	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, next, pending[0].Transfer)
}

func TestResendWithChangedTail(t *testing.T) {
	r, tables, _ := newTestReassembler(t)
	data := make([]byte, 2000)
	rng := rand.New(rand.NewPCG(5, 6))
	for i := range data {
		data[i] = byte(rng.UintN(256))
	}
	first := storeTransfer(t, r, uuid.New(), Split(data, 512))
	require.NotNil(t, first)

	// only the last segment differs from the previous transfer
	changed := bytes.Clone(data)
	changed[1999] ^= 0xff
	second := storeTransfer(t, r, uuid.New(), Split(changed, 512))
	require.NotNil(t, second)
	assert.Equal(t, xxhash.Sum64(changed), second.Digest)

	got, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, changed, got)
	assert.Empty(t, r.Pending())
	tables.Lock()
	assert.Empty(t, tables.Reassembly)
	tables.Unlock()
}

func TestNewTransferReplacesIncomplete(t *testing.T) {
	r, _, _ := newTestReassembler(t)
	old := uuid.New()
	h := dataHeader("A", "B", 0, 3, []byte("abandoned"))
	h.Transfer = old
	_, err := r.Store(h, []byte("abandoned"))
	require.NoError(t, err)

	next := uuid.New()
	done := storeTransfer(t, r, next, [][]byte{[]byte("fresh "), []byte("data")})
	require.NotNil(t, done)
	assert.Equal(t, next, done.Transfer)
	assert.Empty(t, r.Pending())

	// a straggler of the replaced transfer does not reopen it
	h = dataHeader("A", "B", 1, 3, []byte("late"))
	h.Transfer = old
	done, err = r.Store(h, []byte("late"))
	require.NoError(t, err)
	assert.Nil(t, done)
	assert.Empty(t, r.Pending())

	got, err := os.ReadFile(r.OutputPath("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh data"), got)
}

func TestReassemblyKeyedBySource(t *testing.T) {
	r, _, _ := newTestReassembler(t)
	_, err := r.Store(dataHeader("A", "B", 0, 2, []byte("a")), []byte("a"))
	require.NoError(t, err)
	_, err = r.Store(dataHeader("C", "B", 0, 2, []byte("c")), []byte("c"))
	require.NoError(t, err)

	pending := r.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, state.NodeId("A"), pending[0].Src)
	assert.Equal(t, state.NodeId("C"), pending[1].Src)
}
