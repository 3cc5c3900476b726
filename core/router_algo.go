package core

import (
	"math/rand/v2"

	"github.com/jellydator/ttlcache/v3"
	"github.com/renmiamu/dvnet/state"
)

type RouterEvent int

// trace events

const (
	RouteImproved RouterEvent = iota
	RouteWorsened
	RouteAdded
	RouteLost
	StaleVectorDropped
	LinkCostChanged
)

// warn events

const (
	UnknownNeighbour RouterEvent = iota + 1000
)

func (e RouterEvent) String() string {
	switch e {
	case RouteImproved:
		return "RouteImproved"
	case RouteWorsened:
		return "RouteWorsened"
	case RouteAdded:
		return "RouteAdded"
	case RouteLost:
		return "RouteLost"
	case StaleVectorDropped:
		return "StaleVectorDropped"
	case LinkCostChanged:
		return "LinkCostChanged"
	case UnknownNeighbour:
		return "UnknownNeighbour"
	}
	return "RouterEvent(?)"
}

// Router is an interface that defines the underlying router operations
type Router interface {
	SendVector(neigh state.NodeId, vec state.Vector)
	Log(event RouterEvent, desc string, args ...any)
}

// pathCost returns Cost(A, B) + Cost(B, dst) where A is us and B is neigh.
// A neighbour always reaches itself at cost 0, even before its first vector.
func pathCost(s *state.RouterState, neigh, dst state.NodeId) uint32 {
	cab, ok := s.Links[neigh]
	if !ok {
		return state.INF
	}
	if dst == neigh {
		return cab
	}
	vec, ok := s.NeighbourVector(neigh)
	if !ok {
		return state.INF
	}
	cbs, ok := vec[dst]
	if !ok {
		return state.INF
	}
	return AddMetric(cab, cbs)
}

// bestRoute scans the neighbours in identity order, so the lowest identity
// wins a tie.
func bestRoute(s *state.RouterState, dst state.NodeId) (state.NodeId, uint32) {
	var nh state.NodeId
	best := state.INF
	for _, neigh := range s.SortedNeighbours() {
		c := pathCost(s, neigh, dst)
		if c < best {
			nh, best = neigh, c
		}
	}
	return nh, best
}

// ComputeRoutes relaxes every known destination against the current link
// costs and neighbour vectors. It returns true if any cost changed.
func ComputeRoutes(s *state.RouterState, r Router) bool {
	changed := false
	for _, dst := range s.Destinations() {
		if dst == s.Id {
			s.Vector[dst] = 0
			continue
		}
		nh, cost := bestRoute(s, dst)
		old := s.Vector[dst]
		if old == cost {
			continue
		}
		changed = true
		s.Vector[dst] = cost
		switch {
		case old == state.INF:
			r.Log(RouteAdded, "route added", "dst", dst, "nh", nh, "cost", cost)
		case cost == state.INF:
			r.Log(RouteLost, "route lost", "dst", dst, "old", old)
		case cost < old:
			r.Log(RouteImproved, "route improved", "dst", dst, "nh", nh, "cost", cost, "old", old)
		default:
			r.Log(RouteWorsened, "route worsened", "dst", dst, "nh", nh, "cost", cost, "old", old)
		}
	}
	return changed
}

// NextHop returns the neighbour realizing the cheapest path to dst. It is
// recomputed on every call and reports false when dst is unreachable or self.
func NextHop(s *state.RouterState, dst state.NodeId) (state.NodeId, uint32, bool) {
	if dst == s.Id {
		return "", 0, false
	}
	nh, cost := bestRoute(s, dst)
	if cost == state.INF {
		return "", state.INF, false
	}
	return nh, cost, true
}

// RoutesOf resolves the next hop of every known destination other than self
func RoutesOf(s *state.RouterState) []RouteEntry {
	out := make([]RouteEntry, 0, len(s.Vector))
	for _, dst := range s.Destinations() {
		if dst == s.Id {
			continue
		}
		nh, cost, ok := NextHop(s, dst)
		out = append(out, RouteEntry{
			Dst:       dst,
			Cost:      cost,
			Nh:        nh,
			Reachable: ok,
		})
	}
	return out
}

// advertisedVector is the vector we announce to neigh. Routes through neigh
// are poisoned so two nodes never count to infinity through each other.
func advertisedVector(s *state.RouterState, neigh state.NodeId) state.Vector {
	vec := s.Vector.Clone()
	for dst := range vec {
		if dst == s.Id || dst == neigh {
			continue
		}
		if nh, cost := bestRoute(s, dst); cost != state.INF && nh == neigh {
			vec[dst] = state.INF
		}
	}
	return vec
}

// BroadcastVector sends the full local vector to every direct neighbour
func BroadcastVector(s *state.RouterState, r Router) {
	for _, neigh := range s.SortedNeighbours() {
		r.SendVector(neigh, advertisedVector(s, neigh))
	}
}

// HandleNeighbourVector stores the vector announced by neigh and recomputes.
// The local vector is re-broadcast if any cost changed.
func HandleNeighbourVector(s *state.RouterState, r Router, neigh state.NodeId, vec state.Vector) {
	if _, ok := s.Links[neigh]; !ok {
		r.Log(UnknownNeighbour, "vector from a node that is not a neighbour", "from", neigh)
		return
	}
	s.Neighbours.Set(neigh, vec, ttlcache.DefaultTTL)
	for dst := range vec {
		if _, ok := s.Vector[dst]; !ok {
			s.Vector[dst] = state.INF
		}
	}
	if ComputeRoutes(s, r) {
		BroadcastVector(s, r)
	}
}

// PerturbLinks nudges every link cost by a random delta in [-maxDelta,
// maxDelta], never below 1. If any link changed, the vector is recomputed and
// broadcast.
func PerturbLinks(s *state.RouterState, r Router, rng *rand.Rand, maxDelta int) bool {
	changed := false
	for _, neigh := range s.SortedNeighbours() {
		old := s.Links[neigh]
		delta := int64(rng.IntN(2*maxDelta+1) - maxDelta)
		cost := uint32(min(max(int64(old)+delta, 1), int64(state.INFM)))
		if cost != old {
			changed = true
			s.Links[neigh] = cost
			r.Log(LinkCostChanged, "link cost changed", "neigh", neigh, "cost", cost, "old", old)
		}
	}
	if changed {
		ComputeRoutes(s, r)
		BroadcastVector(s, r)
	}
	return changed
}

// RunGC drops neighbour vectors that were not refreshed in time
func RunGC(s *state.RouterState, r Router) {
	before := s.Neighbours.Len()
	s.Neighbours.DeleteExpired()
	if dropped := before - s.Neighbours.Len(); dropped > 0 {
		r.Log(StaleVectorDropped, "stale neighbour vectors dropped", "count", dropped)
	}
	if ComputeRoutes(s, r) {
		BroadcastVector(s, r)
	}
}
