package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SegmentKey identifies an outbound segment awaiting acknowledgement
type SegmentKey struct {
	Dst      NodeId
	Transfer uuid.UUID
	Seq      uint32
}

// TransferKey identifies an inbound transfer
type TransferKey struct {
	Src NodeId
	Dst NodeId
}

type UnackedSegment struct {
	SentAt  time.Time
	Packet  []byte
	Retries int
	// Acked is closed when the ACK for this segment clears the entry
	Acked chan struct{}
}

type ReassemblyEntry struct {
	Transfer  uuid.UUID
	Total     uint32
	Segments  map[uint32][]byte
	StartedAt time.Time
}

// TransferTables holds the transport bookkeeping of a node. Every access must
// hold the lock.
type TransferTables struct {
	sync.Mutex
	Unacked    map[SegmentKey]*UnackedSegment
	Reassembly map[TransferKey]*ReassemblyEntry
	// Outbound holds the destinations with a transfer in progress
	Outbound map[NodeId]struct{}
}

func NewTransferTables() *TransferTables {
	return &TransferTables{
		Unacked:    make(map[SegmentKey]*UnackedSegment),
		Reassembly: make(map[TransferKey]*ReassemblyEntry),
		Outbound:   make(map[NodeId]struct{}),
	}
}
