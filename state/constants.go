package state

import "time"

const (
	// INF is the cost of an unreachable destination
	INF = ^(uint32)(0)
	// INFM is the maximum value for a cost that is still reachable.
	INFM = INF - 1
)

var (
	SegmentSize        = 512
	AckTimeout         = time.Millisecond * 500
	DropProbability    = 0.05
	CorruptProbability = 0.05
	WindowSize         = 4
	MaxRetries         = 50
	HopLimit           = (int32)(10)
	RecvDir            = "files"

	// link cost perturbation
	CostUpdateInterval = time.Second * 60
	MaxCostDelta       = 2

	// full vector advertisement, neighbour vectors expire if not refreshed
	RouteUpdateDelay = time.Second * 5
	RouteExpiryTime  = 5 * RouteUpdateDelay
	GcDelay          = time.Millisecond * 1000

	// largest UDP payload over IPv4
	MaxDatagramSize = 65507
	// leaves room for the header inside a single datagram
	MaxSegmentSize = 60000

	DefaultConfigPath = "config.yaml"
)
