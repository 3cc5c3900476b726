package state

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
peers:
  a: 127.0.0.1:5001
  b: 127.0.0.1:5002
  c: 127.0.0.1:5003
links:
  a: {b: 1}
  b: {c: 3}
  c: {b: 3}
node:
  segment_size: 256
  ack_timeout: 200ms
  drop_probability: 0
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	assert.NoError(t, NetworkConfigValidator(&cfg.NetworkCfg))

	assert.Equal(t, []NodeId{"a", "b", "c"}, cfg.GetNodes())
	addr, ok := cfg.GetAddr("b")
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:5002"), addr)

	local := cfg.Node
	local.Id = "a"
	local.ApplyDefaults()
	assert.NoError(t, LocalConfigValidator(&local, &cfg.NetworkCfg))
	assert.Equal(t, 256, local.SegmentSize)
	assert.Equal(t, 200*time.Millisecond, local.AckTimeout)
	assert.Equal(t, 0.0, *local.DropProbability)
	assert.Equal(t, CorruptProbability, *local.CorruptProbability)
	assert.Equal(t, WindowSize, local.WindowSize)
	assert.Equal(t, RecvDir, local.RecvDir)
}

func TestApplyDefaults(t *testing.T) {
	cfg := LocalCfg{}
	cfg.ApplyDefaults()
	assert.Equal(t, SegmentSize, cfg.SegmentSize)
	assert.Equal(t, WindowSize, cfg.WindowSize)
	assert.Equal(t, AckTimeout, cfg.AckTimeout)
	assert.Equal(t, MaxRetries, *cfg.MaxRetries)
	assert.Equal(t, HopLimit, cfg.HopLimit)
	assert.Equal(t, DropProbability, *cfg.DropProbability)
	assert.Equal(t, CorruptProbability, *cfg.CorruptProbability)
	assert.Equal(t, CostUpdateInterval, cfg.CostUpdateInterval)
	assert.Equal(t, MaxCostDelta, cfg.MaxCostDelta)
}

func TestZeroRetriesKept(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig + "  max_retries: 0\n"))
	require.NoError(t, err)
	local := cfg.Node
	local.Id = "a"
	require.NotNil(t, local.MaxRetries)
	local.ApplyDefaults()
	assert.Equal(t, 0, *local.MaxRetries)
	assert.NoError(t, LocalConfigValidator(&local, &cfg.NetworkCfg))
	assert.Contains(t, local.String(), "retries=0")

	// absent means the default
	local = LocalCfg{Id: "a"}
	assert.Contains(t, local.String(), "retries=default")
	local.ApplyDefaults()
	assert.Equal(t, MaxRetries, *local.MaxRetries)
}

func TestLinksOf_Undirected(t *testing.T) {
	cfg := NetworkCfg{
		Links: map[NodeId]map[NodeId]uint32{
			"a": {"b": 1},
			"b": {"c": 3},
		},
	}
	assert.Equal(t, map[NodeId]uint32{"b": 1}, cfg.LinksOf("a"))
	assert.Equal(t, map[NodeId]uint32{"a": 1, "c": 3}, cfg.LinksOf("b"))
	assert.Equal(t, map[NodeId]uint32{"b": 3}, cfg.LinksOf("c"))
	assert.Empty(t, cfg.LinksOf("d"))
}

func TestLinksOf_OwnEntryWins(t *testing.T) {
	cfg := NetworkCfg{
		Links: map[NodeId]map[NodeId]uint32{
			"a": {"b": 2},
			"b": {"a": 5},
		},
	}
	assert.Equal(t, map[NodeId]uint32{"b": 2}, cfg.LinksOf("a"))
	assert.Equal(t, map[NodeId]uint32{"a": 5}, cfg.LinksOf("b"))
}

func TestEdges(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, []Pair[Pair[NodeId, NodeId], uint32]{
		{Pair[NodeId, NodeId]{"a", "b"}, 1},
		{Pair[NodeId, NodeId]{"b", "c"}, 3},
	}, cfg.Edges())
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("peers: [a, b"))
	assert.Error(t, err)
}
