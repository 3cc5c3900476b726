package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"github.com/renmiamu/dvnet/perf"
	"github.com/renmiamu/dvnet/protocol"
	"github.com/renmiamu/dvnet/state"
)

var (
	ErrNoRoute            = errors.New("no route")
	ErrTransferInProgress = errors.New("a transfer to this peer is already in progress")
	ErrUnknownPeer        = errors.New("unknown peer")
)

type TransferStatus int

const (
	Completed TransferStatus = iota
	PartiallyFailed
	Aborted
)

func (s TransferStatus) String() string {
	switch s {
	case Completed:
		return "completed"
	case PartiallyFailed:
		return "partially failed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("TransferStatus(%d)", int(s))
}

// TransferResult describes how an outbound transfer ended. Missing lists the
// segments that were abandoned, or never acknowledged before an abort.
type TransferResult struct {
	Id              uuid.UUID
	Dst             state.NodeId
	Status          TransferStatus
	Segments        int
	Missing         []uint32
	Retransmissions int64
	Digest          uint64
	Elapsed         time.Duration
}

func (r *TransferResult) String() string {
	if r.Status == Completed {
		return fmt.Sprintf("transfer %s to %s %s: %d segments in %s, %d retransmissions",
			r.Id, r.Dst, r.Status, r.Segments, r.Elapsed.Round(time.Millisecond), r.Retransmissions)
	}
	return fmt.Sprintf("transfer %s to %s %s: %d/%d segments missing %v",
		r.Id, r.Dst, r.Status, len(r.Missing), r.Segments, r.Missing)
}

// NextHopper resolves the first hop towards a destination
type NextHopper interface {
	NextHop(dst state.NodeId) (state.NodeId, bool)
}

type segmentOutcome int

const (
	segmentAcked segmentOutcome = iota
	segmentAbandoned
	segmentAborted
)

// Transport sends data to a peer as fixed-size segments under a sliding
// window, retransmitting each segment until it is acknowledged or the retry
// ceiling is reached.
type Transport struct {
	id          state.NodeId
	tables      *state.TransferTables
	router      NextHopper
	out         Outbound
	log         *slog.Logger
	segmentSize int
	windowSize  int
	maxRetries  int
	ackTimeout  time.Duration
	hopLimit    int32
}

func NewTransport(env *state.Env, tables *state.TransferTables, router NextHopper, out Outbound) *Transport {
	return &Transport{
		id:          env.Id,
		tables:      tables,
		router:      router,
		out:         out,
		log:         env.Log.With("module", "transport"),
		segmentSize: env.SegmentSize,
		windowSize:  env.WindowSize,
		maxRetries:  *env.MaxRetries,
		ackTimeout:  env.AckTimeout,
		hopLimit:    env.HopLimit,
	}
}

// Split cuts data into segments of size bytes, the last one may be shorter.
// Empty data is a single empty segment so the receiver still learns of it.
func Split(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	segs := make([][]byte, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		segs = append(segs, data[off:min(off+size, len(data))])
	}
	return segs
}

func (t *Transport) SendFile(ctx context.Context, dst state.NodeId, path string) (*TransferResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t.Send(ctx, dst, data)
}

// Send transfers data to dst and blocks until every segment is acknowledged,
// abandoned, or ctx is cancelled.
func (t *Transport) Send(ctx context.Context, dst state.NodeId, data []byte) (*TransferResult, error) {
	if dst == t.id {
		return nil, fmt.Errorf("cannot send to self (%s)", dst)
	}
	t.tables.Lock()
	if _, busy := t.tables.Outbound[dst]; busy {
		t.tables.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTransferInProgress, dst)
	}
	t.tables.Outbound[dst] = struct{}{}
	t.tables.Unlock()
	defer func() {
		t.tables.Lock()
		delete(t.tables.Outbound, dst)
		t.tables.Unlock()
	}()

	segs := Split(data, t.segmentSize)
	total := uint32(len(segs))
	res := &TransferResult{
		Id:       uuid.New(),
		Dst:      dst,
		Segments: len(segs),
		Digest:   xxhash.Sum64(data),
	}
	log := t.log.With("transfer", res.Id.String(), "dst", dst)
	log.Info("starting transfer", "bytes", len(data), "segments", total, "digest", fmt.Sprintf("%016x", res.Digest))

	start := time.Now()
	var retransmissions atomic.Int64
	for base := 0; base < len(segs); base += t.windowSize {
		// the window narrows at the tail
		end := min(base+t.windowSize, len(segs))
		outcomes := make([]segmentOutcome, end-base)
		wg := sync.WaitGroup{}
		for seq := base; seq < end; seq++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcomes[seq-base] = t.sendSegment(ctx, dst, res.Id, uint32(seq), total, segs[seq], &retransmissions)
			}()
		}
		wg.Wait()

		for i, o := range outcomes {
			if o != segmentAcked {
				res.Missing = append(res.Missing, uint32(base+i))
			}
		}
		if ctx.Err() != nil {
			for seq := end; seq < len(segs); seq++ {
				res.Missing = append(res.Missing, uint32(seq))
			}
			res.Status = Aborted
			break
		}
	}
	if res.Status != Aborted && len(res.Missing) > 0 {
		res.Status = PartiallyFailed
	}
	res.Retransmissions = retransmissions.Load()
	res.Elapsed = time.Since(start)

	if res.Status == Completed {
		log.Info("all segments acknowledged", "elapsed", res.Elapsed, "retransmissions", res.Retransmissions)
	} else {
		log.Warn("transfer incomplete", "status", res.Status, "missing", res.Missing)
	}
	return res, nil
}

// sendSegment is the watcher of a single segment. It owns the segment's
// unacked entry from first send until the segment is resolved.
func (t *Transport) sendSegment(ctx context.Context, dst state.NodeId, transfer uuid.UUID, seq, total uint32, payload []byte, retransmissions *atomic.Int64) segmentOutcome {
	key := state.SegmentKey{Dst: dst, Transfer: transfer, Seq: seq}
	pkt := protocol.Seal(&protocol.Header{
		Type:     protocol.Data,
		Seq:      seq,
		Total:    total,
		Src:      string(t.id),
		Dst:      string(dst),
		TTL:      t.hopLimit,
		Transfer: transfer,
	}, payload)
	entry := &state.UnackedSegment{
		Packet: pkt,
		Acked:  make(chan struct{}),
	}

	t.tables.Lock()
	entry.SentAt = time.Now()
	t.tables.Unacked[key] = entry
	t.tables.Unlock()

	t.transmit(dst, seq, pkt)
	timer := time.NewTimer(t.ackTimeout)
	defer timer.Stop()

	for {
		select {
		case <-entry.Acked:
			return segmentAcked
		case <-ctx.Done():
			t.clearEntry(key, entry)
			return segmentAborted
		case <-timer.C:
		}

		t.tables.Lock()
		select {
		case <-entry.Acked:
			// acknowledged while the timer fired
			t.tables.Unlock()
			return segmentAcked
		default:
		}
		if entry.Retries >= t.maxRetries {
			if t.tables.Unacked[key] == entry {
				delete(t.tables.Unacked, key)
			}
			t.tables.Unlock()
			perf.SegmentsAbandoned.Add(1)
			t.log.Warn("segment abandoned after max retries", "dst", dst, "seq", seq, "retries", entry.Retries)
			return segmentAbandoned
		}
		entry.Retries++
		entry.SentAt = time.Now()
		t.tables.Unlock()

		retransmissions.Add(1)
		perf.SegmentsRetransmitted.Add(1)
		t.log.Debug("ack timeout, resending segment", "dst", dst, "seq", seq, "retry", entry.Retries)
		t.transmit(dst, seq, pkt)
		timer.Reset(t.ackTimeout)
	}
}

func (t *Transport) clearEntry(key state.SegmentKey, entry *state.UnackedSegment) {
	t.tables.Lock()
	defer t.tables.Unlock()
	if t.tables.Unacked[key] == entry {
		delete(t.tables.Unacked, key)
	}
}

// transmit hands pkt to the current first hop. Without a route the send is
// skipped, the watcher's timeout drives the next attempt.
func (t *Transport) transmit(dst state.NodeId, seq uint32, pkt []byte) {
	nh, ok := t.router.NextHop(dst)
	if !ok {
		t.log.Warn("no route, segment send skipped", "dst", dst, "seq", seq)
		return
	}
	if err := t.out.Send(nh, pkt); err != nil {
		t.log.Warn("failed to send segment", "dst", dst, "seq", seq, "nh", nh, "err", err)
		return
	}
	perf.SegmentsSent.Add(1)
}

// HandleAck clears the unacked entry of the segment acknowledged by from and
// releases its watcher. An ACK only matches a segment of the transfer it
// names, so duplicates left over from an earlier transfer are ignored.
func (t *Transport) HandleAck(from state.NodeId, transfer uuid.UUID, seq uint32) {
	t.tables.Lock()
	defer t.tables.Unlock()
	key := state.SegmentKey{Dst: from, Transfer: transfer, Seq: seq}
	entry, ok := t.tables.Unacked[key]
	if !ok {
		t.log.Debug("ack for unknown segment", "from", from, "transfer", transfer, "seq", seq)
		return
	}
	delete(t.tables.Unacked, key)
	close(entry.Acked)
	t.log.Debug("segment acknowledged", "from", from, "seq", seq, "rtt", time.Since(entry.SentAt))
}

// InFlight returns the number of unacknowledged segments towards dst
func (t *Transport) InFlight(dst state.NodeId) int {
	t.tables.Lock()
	defer t.tables.Unlock()
	n := 0
	for key := range t.tables.Unacked {
		if key.Dst == dst {
			n++
		}
	}
	return n
}

type OutboundProgress struct {
	Dst     state.NodeId
	Unacked []uint32
}

// Progress returns the unacknowledged segments of every outbound transfer
func (t *Transport) Progress() []OutboundProgress {
	t.tables.Lock()
	defer t.tables.Unlock()
	byDst := make(map[state.NodeId][]uint32)
	for dst := range t.tables.Outbound {
		byDst[dst] = nil
	}
	for key := range t.tables.Unacked {
		byDst[key.Dst] = append(byDst[key.Dst], key.Seq)
	}
	out := make([]OutboundProgress, 0, len(byDst))
	for _, dst := range slices.Sorted(maps.Keys(byDst)) {
		seqs := byDst[dst]
		slices.Sort(seqs)
		out = append(out, OutboundProgress{Dst: dst, Unacked: seqs})
	}
	return out
}
