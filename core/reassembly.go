package core

import (
	"bytes"
	"cmp"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/renmiamu/dvnet/protocol"
	"github.com/renmiamu/dvnet/state"
)

// CompletedTransfer describes a reassembled file written to disk
type CompletedTransfer struct {
	Src      state.NodeId
	Dst      state.NodeId
	Transfer uuid.UUID
	Path     string
	Size     int
	Digest   uint64
}

// Reassembler collects inbound DATA segments per (source, destination) and
// writes the file once every segment is present. A pair holds at most one
// entry, a segment of a new transfer id replaces the entry of the old one.
type Reassembler struct {
	tables  *state.TransferTables
	recvDir string
	log     *slog.Logger
	// finished holds the ids of recently completed or replaced transfers, so
	// a late retransmission of one of their segments does not open a new entry
	finished *ttlcache.Cache[uuid.UUID, state.TransferKey]
}

func NewReassembler(env *state.Env, tables *state.TransferTables) *Reassembler {
	linger := time.Duration(*env.MaxRetries+1) * env.AckTimeout
	return &Reassembler{
		tables:  tables,
		recvDir: env.RecvDir,
		log:     env.Log.With("module", "reassembly"),
		finished: ttlcache.New[uuid.UUID, state.TransferKey](
			ttlcache.WithTTL[uuid.UUID, state.TransferKey](linger),
			ttlcache.WithDisableTouchOnHit[uuid.UUID, state.TransferKey](),
		),
	}
}

// OutputPath is where a transfer from src to dst is written
func (r *Reassembler) OutputPath(src, dst state.NodeId) string {
	return filepath.Join(r.recvDir, string(dst), "received_from_"+string(src))
}

func (r *Reassembler) isFinished(key state.TransferKey, transfer uuid.UUID) bool {
	item := r.finished.Get(transfer)
	return item != nil && !item.IsExpired() && item.Value() == key
}

// Store records a segment. It returns a non-nil CompletedTransfer when the
// segment completed its transfer. Segments outside the declared total are
// rejected with protocol.ErrMalformedPacket.
func (r *Reassembler) Store(h *protocol.Header, payload []byte) (*CompletedTransfer, error) {
	key := state.TransferKey{Src: state.NodeId(h.Src), Dst: state.NodeId(h.Dst)}

	r.tables.Lock()
	if r.isFinished(key, h.Transfer) {
		r.tables.Unlock()
		r.log.Debug("late duplicate of a finished transfer", "src", key.Src, "transfer", h.Transfer, "seq", h.Seq)
		return nil, nil
	}
	entry, ok := r.tables.Reassembly[key]
	if ok && entry.Transfer != h.Transfer {
		// the sender gave up on the old transfer before starting this one
		delete(r.tables.Reassembly, key)
		r.finished.Set(entry.Transfer, key, ttlcache.DefaultTTL)
		r.log.Warn("incomplete transfer replaced", "src", key.Src, "transfer", entry.Transfer,
			"received", len(entry.Segments), "segments", entry.Total)
		ok = false
	}
	if !ok {
		if h.Seq >= h.Total {
			r.tables.Unlock()
			return nil, fmt.Errorf("%w: seq %d outside total %d", protocol.ErrMalformedPacket, h.Seq, h.Total)
		}
		entry = &state.ReassemblyEntry{
			Transfer:  h.Transfer,
			Total:     h.Total,
			Segments:  make(map[uint32][]byte),
			StartedAt: time.Now(),
		}
		r.tables.Reassembly[key] = entry
		r.log.Info("receiving transfer", "src", key.Src, "transfer", h.Transfer, "segments", h.Total)
	}
	if h.Seq >= entry.Total {
		r.tables.Unlock()
		return nil, fmt.Errorf("%w: seq %d outside total %d", protocol.ErrMalformedPacket, h.Seq, entry.Total)
	}
	// payload aliases the receive buffer
	entry.Segments[h.Seq] = bytes.Clone(payload)
	if uint32(len(entry.Segments)) < entry.Total {
		r.tables.Unlock()
		return nil, nil
	}
	delete(r.tables.Reassembly, key)
	r.finished.Set(entry.Transfer, key, ttlcache.DefaultTTL)
	r.tables.Unlock()

	// every seq in [0, Total) is present, so the concatenation is gap-free
	var buf bytes.Buffer
	for seq := range entry.Total {
		buf.Write(entry.Segments[seq])
	}
	data := buf.Bytes()
	done := &CompletedTransfer{
		Src:      key.Src,
		Dst:      key.Dst,
		Transfer: entry.Transfer,
		Path:     r.OutputPath(key.Src, key.Dst),
		Size:     len(data),
		Digest:   xxhash.Sum64(data),
	}
	if err := os.MkdirAll(filepath.Dir(done.Path), 0755); err != nil {
		return nil, fmt.Errorf("create receive dir: %w", err)
	}
	if err := os.WriteFile(done.Path, data, 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", done.Path, err)
	}
	r.log.Info("transfer reassembled", "src", key.Src, "path", done.Path, "bytes", done.Size,
		"digest", fmt.Sprintf("%016x", done.Digest), "elapsed", time.Since(entry.StartedAt))
	return done, nil
}

type InboundProgress struct {
	Src      state.NodeId
	Dst      state.NodeId
	Transfer uuid.UUID
	Total    uint32
	Received []uint32
	Missing  []uint32
}

// Pending returns the state of every incomplete inbound transfer
func (r *Reassembler) Pending() []InboundProgress {
	r.tables.Lock()
	defer r.tables.Unlock()
	out := make([]InboundProgress, 0, len(r.tables.Reassembly))
	for key, entry := range r.tables.Reassembly {
		p := InboundProgress{
			Src:      key.Src,
			Dst:      key.Dst,
			Transfer: entry.Transfer,
			Total:    entry.Total,
			Received: slices.Sorted(maps.Keys(entry.Segments)),
		}
		for seq := range entry.Total {
			if _, ok := entry.Segments[seq]; !ok {
				p.Missing = append(p.Missing, seq)
			}
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b InboundProgress) int {
		return cmp.Or(cmp.Compare(a.Src, b.Src), cmp.Compare(a.Dst, b.Dst))
	})
	return out
}

// Gc forgets finished transfers past their linger time
func (r *Reassembler) Gc() {
	r.finished.DeleteExpired()
}

func (r *Reassembler) Cleanup() {
	r.finished.DeleteAll()
}
