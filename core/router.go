package core

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/renmiamu/dvnet/perf"
	"github.com/renmiamu/dvnet/protocol"
	"github.com/renmiamu/dvnet/state"
)

// DvRouter owns the routing bookkeeping of a node (distance vector, link
// costs, neighbour vectors) behind a single lock. Vectors queued for sending
// while the lock is held are flushed after it is released.
type DvRouter struct {
	mu       sync.Mutex
	rs       *state.RouterState
	log      *slog.Logger
	out      Outbound
	rng      *rand.Rand
	hopLimit int32
	maxDelta int
	pending  []state.Pair[state.NodeId, state.Vector]
}

type RouteEntry struct {
	Dst  state.NodeId
	Cost uint32
	Nh   state.NodeId
	// Reachable is false when no neighbour offers a finite path
	Reachable bool
}

func (e RouteEntry) String() string {
	if !e.Reachable {
		return fmt.Sprintf("%s unreachable", e.Dst)
	}
	return fmt.Sprintf("%s via %s (cost: %d)", e.Dst, e.Nh, e.Cost)
}

func NewDvRouter(env *state.Env, out Outbound, rng *rand.Rand) *DvRouter {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r := &DvRouter{
		rs:       state.NewRouterState(env.Id, env.LinksOf(env.Id), env.GetNodes(), state.RouteExpiryTime),
		log:      env.Log.With("module", "router"),
		out:      out,
		rng:      rng,
		hopLimit: env.HopLimit,
		maxDelta: env.MaxCostDelta,
	}
	// direct neighbours are reachable before any vector arrives
	ComputeRoutes(r.rs, r)
	return r
}

// SendVector queues vec for neigh. It is only called with the lock held.
func (r *DvRouter) SendVector(neigh state.NodeId, vec state.Vector) {
	r.pending = append(r.pending, state.Pair[state.NodeId, state.Vector]{V1: neigh, V2: vec})
}

func (r *DvRouter) Log(event RouterEvent, desc string, args ...any) {
	msg := fmt.Sprintf("%s %s", event.String(), desc)
	if event >= UnknownNeighbour {
		r.log.Warn(msg, args...)
		return
	}
	r.log.Debug(msg, args...)
}

// do runs fun under the routing lock, then sends whatever it queued
func (r *DvRouter) do(fun func(s *state.RouterState)) {
	r.mu.Lock()
	fun(r.rs)
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	r.flushIO(pending)
}

func (r *DvRouter) flushIO(pending []state.Pair[state.NodeId, state.Vector]) {
	for _, p := range pending {
		pkt := protocol.NewPacket(protocol.DistanceVector, 0, 1, string(r.rs.Id), string(p.V1), r.hopLimit,
			protocol.EncodeVector(toWireVector(p.V2)))
		if err := r.out.Send(p.V1, pkt); err != nil {
			r.log.Warn("failed to send vector", "to", p.V1, "err", err)
			continue
		}
		perf.VectorsSent.Add(1)
	}
}

// Ingest handles a vector announced by a neighbour
func (r *DvRouter) Ingest(neigh state.NodeId, vec state.Vector) {
	r.do(func(s *state.RouterState) {
		HandleNeighbourVector(s, r, neigh, vec)
	})
}

// NextHop returns the first hop towards dst, or false if there is no route
func (r *DvRouter) NextHop(dst state.NodeId) (state.NodeId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nh, _, ok := NextHop(r.rs, dst)
	return nh, ok
}

// Distance returns the current cost to dst, INF if unknown or unreachable
func (r *DvRouter) Distance(dst state.NodeId) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	cost, ok := r.rs.Vector[dst]
	if !ok {
		return state.INF
	}
	return cost
}

// LinkCost returns the current cost of the direct link to neigh
func (r *DvRouter) LinkCost(neigh state.NodeId) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cost, ok := r.rs.Links[neigh]
	return cost, ok
}

// PerturbCosts randomly nudges every link cost
func (r *DvRouter) PerturbCosts() {
	r.do(func(s *state.RouterState) {
		PerturbLinks(s, r, r.rng, r.maxDelta)
	})
}

// Advertise sends the full local vector to every neighbour
func (r *DvRouter) Advertise() {
	r.do(func(s *state.RouterState) {
		BroadcastVector(s, r)
	})
}

func (r *DvRouter) GcRouter() {
	r.do(func(s *state.RouterState) {
		RunGC(s, r)
	})
}

// Routes returns every known destination other than self with its resolved
// next hop.
func (r *DvRouter) Routes() []RouteEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoutesOf(r.rs)
}

// StringRoutes renders the routing table one destination per line
func (r *DvRouter) StringRoutes() string {
	routes := r.Routes()
	lines := make([]string, 0, len(routes))
	for _, e := range routes {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}

func (r *DvRouter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rs.Neighbours.DeleteAll()
}
