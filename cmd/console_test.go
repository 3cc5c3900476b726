package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/netip"
	"strings"
	"testing"

	"github.com/renmiamu/dvnet/core"
	"github.com/renmiamu/dvnet/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopOut struct{}

func (nopOut) Send(state.NodeId, []byte) error {
	return nil
}

func newTestNode(t *testing.T) *core.Node {
	ncfg := state.NetworkCfg{
		Peers: map[state.NodeId]netip.AddrPort{
			"A": netip.MustParseAddrPort("127.0.0.1:5001"),
			"B": netip.MustParseAddrPort("127.0.0.1:5002"),
			"C": netip.MustParseAddrPort("127.0.0.1:5003"),
		},
		Links: map[state.NodeId]map[state.NodeId]uint32{
			"A": {"B": 1},
			"B": {"C": 1},
		},
	}
	lcfg := state.LocalCfg{Id: "A", RecvDir: t.TempDir()}
	lcfg.ApplyDefaults()
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() {
		cancel(context.Canceled)
	})
	return core.NewNode(&state.Env{
		NetworkCfg: ncfg,
		LocalCfg:   lcfg,
		Context:    ctx,
		Cancel:     cancel,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nopOut{})
}

func TestConsole(t *testing.T) {
	n := newTestNode(t)
	in := strings.NewReader("routes\ncheck\n\nbogus\nsend B\nsend Z file\nexit\nroutes\n")
	var out bytes.Buffer

	require.NoError(t, NewConsole(in, &out)(context.Background(), n))

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "B via B (cost: 1)"))
	assert.Contains(t, text, "C unreachable")
	assert.Contains(t, text, "no transfers in progress")
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.Contains(t, text, "usage: send <peer> <file>")
	assert.Contains(t, text, "send to Z failed: unknown peer")
}

func TestConsoleEOF(t *testing.T) {
	n := newTestNode(t)
	var out bytes.Buffer
	assert.NoError(t, NewConsole(strings.NewReader("help\n"), &out)(context.Background(), n))
	assert.Contains(t, out.String(), "send <peer> <file>")
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "to B: 2 segments unacknowledged [1 3]\nfrom C: 1/3 segments, missing [0 2]\n", formatProgress(core.Progress{
		Outbound: []core.OutboundProgress{{Dst: "B", Unacked: []uint32{1, 3}}},
		Inbound:  []core.InboundProgress{{Src: "C", Dst: "A", Total: 3, Received: []uint32{1}, Missing: []uint32{0, 2}}},
	}))
}
