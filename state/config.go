package state

import (
	"cmp"
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// NetworkCfg is the static address book shared by every node of a run
type NetworkCfg struct {
	Peers map[NodeId]netip.AddrPort    `yaml:"peers"`
	Links map[NodeId]map[NodeId]uint32 `yaml:"links"`
}

// LocalCfg represents node-level configuration. Zero values are replaced by
// the package defaults in ApplyDefaults. Pointer fields are those where zero
// is a meaningful setting, they are only defaulted when absent.
type LocalCfg struct {
	Id                 NodeId        `yaml:"-"`
	RecvDir            string        `yaml:"recv_dir,omitempty"`
	LogPath            string        `yaml:"log_path,omitempty"` // if not empty, logs are also written to this file
	SegmentSize        int           `yaml:"segment_size,omitempty"`
	WindowSize         int           `yaml:"window_size,omitempty"`
	AckTimeout         time.Duration `yaml:"ack_timeout,omitempty"`
	MaxRetries         *int          `yaml:"max_retries,omitempty"`
	HopLimit           int32         `yaml:"hop_limit,omitempty"`
	DropProbability    *float64      `yaml:"drop_probability,omitempty"`
	CorruptProbability *float64      `yaml:"corrupt_probability,omitempty"`
	CostUpdateInterval time.Duration `yaml:"cost_update_interval,omitempty"`
	MaxCostDelta       int           `yaml:"max_cost_delta,omitempty"`
}

// Config is the on-disk layout of the config file
type Config struct {
	NetworkCfg `yaml:",inline"`
	Node       LocalCfg `yaml:"node,omitempty"`
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *LocalCfg) ApplyDefaults() {
	if c.RecvDir == "" {
		c.RecvDir = RecvDir
	}
	if c.SegmentSize == 0 {
		c.SegmentSize = SegmentSize
	}
	if c.WindowSize == 0 {
		c.WindowSize = WindowSize
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = AckTimeout
	}
	if c.MaxRetries == nil {
		n := MaxRetries
		c.MaxRetries = &n
	}
	if c.HopLimit == 0 {
		c.HopLimit = HopLimit
	}
	if c.DropProbability == nil {
		p := DropProbability
		c.DropProbability = &p
	}
	if c.CorruptProbability == nil {
		p := CorruptProbability
		c.CorruptProbability = &p
	}
	if c.CostUpdateInterval == 0 {
		c.CostUpdateInterval = CostUpdateInterval
	}
	if c.MaxCostDelta == 0 {
		c.MaxCostDelta = MaxCostDelta
	}
}

// GetNodes returns every peer identity in sorted order
func (c *NetworkCfg) GetNodes() []NodeId {
	return slices.Sorted(maps.Keys(c.Peers))
}

func (c *NetworkCfg) GetAddr(id NodeId) (netip.AddrPort, bool) {
	addr, ok := c.Peers[id]
	return addr, ok
}

// LinksOf returns the direct neighbours of id and their initial costs. Links
// are undirected, an edge listed by either endpoint applies to both, and the
// entry listed by id itself takes precedence.
func (c *NetworkCfg) LinksOf(id NodeId) map[NodeId]uint32 {
	links := make(map[NodeId]uint32)
	for from, tbl := range c.Links {
		if from == id {
			continue
		}
		if cost, ok := tbl[id]; ok {
			links[from] = cost
		}
	}
	maps.Copy(links, c.Links[id])
	return links
}

// Edges returns every undirected link once, ordered by endpoints
func (c *NetworkCfg) Edges() []Pair[Pair[NodeId, NodeId], uint32] {
	seen := make(map[Pair[NodeId, NodeId]]uint32)
	for from, tbl := range c.Links {
		for to, cost := range tbl {
			e := Pair[NodeId, NodeId]{min(from, to), max(from, to)}
			if _, ok := seen[e]; !ok || from < to {
				seen[e] = cost
			}
		}
	}
	out := make([]Pair[Pair[NodeId, NodeId], uint32], 0, len(seen))
	for e, cost := range seen {
		out = append(out, Pair[Pair[NodeId, NodeId], uint32]{e, cost})
	}
	slices.SortFunc(out, func(a, b Pair[Pair[NodeId, NodeId], uint32]) int {
		return cmp.Or(cmp.Compare(a.V1.V1, b.V1.V1), cmp.Compare(a.V1.V2, b.V1.V2))
	})
	return out
}

func (c *LocalCfg) String() string {
	retries := "default"
	if c.MaxRetries != nil {
		retries = strconv.Itoa(*c.MaxRetries)
	}
	return fmt.Sprintf("id=%s segment=%d window=%d timeout=%s retries=%s ttl=%d",
		c.Id, c.SegmentSize, c.WindowSize, c.AckTimeout, retries, c.HopLimit)
}
