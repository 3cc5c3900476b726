package core

import (
	"context"
	"net/netip"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/renmiamu/dvnet/protocol"
	"github.com/renmiamu/dvnet/state"
)

// testNetwork builds an address book on loopback for ids, in order
func testNetwork(links map[state.NodeId]map[state.NodeId]uint32, ids ...state.NodeId) state.NetworkCfg {
	peers := make(map[state.NodeId]netip.AddrPort)
	for i, id := range ids {
		peers[id] = netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(24000+i))
	}
	return state.NetworkCfg{Peers: peers, Links: links}
}

func testEnv(t *testing.T, id state.NodeId, ncfg state.NetworkCfg, mods ...func(cfg *state.LocalCfg)) *state.Env {
	zero := 0.0
	lcfg := state.LocalCfg{
		Id:                 id,
		RecvDir:            t.TempDir(),
		AckTimeout:         20 * time.Millisecond,
		MaxRetries:         ptr(10),
		DropProbability:    &zero,
		CorruptProbability: &zero,
	}
	for _, mod := range mods {
		mod(&lcfg)
	}
	lcfg.ApplyDefaults()
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() {
		cancel(context.Canceled)
	})
	return &state.Env{
		NetworkCfg: ncfg,
		LocalCfg:   lcfg,
		Context:    ctx,
		Cancel:     cancel,
		Log:        discardLogger(),
	}
}

type sentPacket struct {
	To      state.NodeId
	Header  protocol.Header
	Payload []byte
}

// recordingOut decodes and records every packet handed to it. hook, if set,
// runs on the sending goroutine after the packet is recorded.
type recordingOut struct {
	mu   sync.Mutex
	sent []sentPacket
	hook func(to state.NodeId, h protocol.Header, payload []byte)
}

func (o *recordingOut) Send(to state.NodeId, pkt []byte) error {
	h, payload, err := protocol.Decode(pkt)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.sent = append(o.sent, sentPacket{To: to, Header: h, Payload: payload})
	hook := o.hook
	o.mu.Unlock()
	if hook != nil {
		hook(to, h, payload)
	}
	return nil
}

func (o *recordingOut) Sent() []sentPacket {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.sent)
}

func (o *recordingOut) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = nil
}

func ptr[T any](v T) *T {
	return &v
}

// staticHops is a fixed next hop table
type staticHops map[state.NodeId]state.NodeId

func (s staticHops) NextHop(dst state.NodeId) (state.NodeId, bool) {
	nh, ok := s[dst]
	return nh, ok
}
