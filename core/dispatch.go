package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/renmiamu/dvnet/perf"
	"github.com/renmiamu/dvnet/protocol"
	"github.com/renmiamu/dvnet/state"
)

// HandlePacket is the single entry point of every inbound datagram. Noise is
// dropped silently, nothing is reported back to the listener.
func (n *Node) HandlePacket(raw []byte) {
	start := time.Now()
	defer func() {
		perf.DispatchLatency.Add(float64(time.Since(start).Microseconds()))
	}()
	perf.RecvPacketPerSecond.Add(1)
	perf.RecvBytesPerSecond.Add(float64(len(raw)))

	h, payload, err := protocol.Decode(raw)
	if err != nil {
		n.drop("malformed packet", "err", err)
		return
	}

	// emulated loss happens before validation, so corruption is caught below
	if n.impair.Drop(&h) {
		n.drop("simulated loss", "pkt", h)
		return
	}
	if h.Type == protocol.Data {
		payload = n.impair.Corrupt(&h, payload)
	}

	if !h.Valid(payload) {
		n.drop("checksum mismatch", "pkt", h)
		return
	}
	if h.TTL <= 0 {
		n.drop("hop limit exhausted", "pkt", h)
		return
	}
	h.TTL--

	if state.NodeId(h.Dst) != n.Id {
		n.forward(&h, payload)
		return
	}

	src := state.NodeId(h.Src)
	switch h.Type {
	case protocol.Ack:
		n.Transport.HandleAck(src, h.Transfer, h.Seq)
	case protocol.Data:
		n.handleData(&h, payload)
	case protocol.DistanceVector:
		vec, err := protocol.DecodeVector(payload)
		if err != nil {
			n.drop("malformed vector", "from", src, "err", err)
			return
		}
		n.Router.Ingest(src, fromWireVector(vec))
	}
}

func (n *Node) handleData(h *protocol.Header, payload []byte) {
	src := state.NodeId(h.Src)
	done, err := n.Reassembler.Store(h, payload)
	if errors.Is(err, protocol.ErrMalformedPacket) {
		n.drop("invalid segment", "pkt", *h, "err", err)
		return
	}
	// acknowledgements are per segment, independent of reassembly
	ack := protocol.Seal(&protocol.Header{
		Type:     protocol.Ack,
		Seq:      h.Seq,
		Total:    1,
		Src:      string(n.Id),
		Dst:      string(src),
		TTL:      n.HopLimit,
		Transfer: h.Transfer,
	}, protocol.AckPayload)
	if sendErr := n.sendRouted(src, ack); sendErr != nil {
		n.Log.Debug("failed to acknowledge segment", "to", src, "seq", h.Seq, "err", sendErr)
	}
	if err != nil {
		n.Log.Error("failed to store reassembled file", "src", src, "err", err)
		return
	}
	if done != nil && n.onReceive != nil {
		n.onReceive(*done)
	}
}

// forward relays a packet with its already decremented hop limit, every other
// field is kept as received.
func (n *Node) forward(h *protocol.Header, payload []byte) {
	nh, ok := n.Router.NextHop(state.NodeId(h.Dst))
	if !ok {
		n.drop("no route", "pkt", *h)
		return
	}
	if err := n.out.Send(nh, protocol.Encode(h, payload)); err != nil {
		n.Log.Debug("failed to forward packet", "nh", nh, "pkt", *h, "err", err)
		return
	}
	perf.ForwardedPerSecond.Add(1)
	n.Log.Debug("forwarded packet", "nh", nh, "pkt", *h)
}

// sendRouted sends pkt towards dst through the current next hop
func (n *Node) sendRouted(dst state.NodeId, pkt []byte) error {
	nh, ok := n.Router.NextHop(dst)
	if !ok {
		return fmt.Errorf("%w to %s", ErrNoRoute, dst)
	}
	return n.out.Send(nh, pkt)
}

func (n *Node) drop(reason string, args ...any) {
	perf.DroppedPerSecond.Add(1)
	n.Log.Debug("dropped packet: "+reason, args...)
}
