package state

import (
	"maps"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Vector maps a destination to a cost
type Vector map[NodeId]uint32

func (v Vector) Clone() Vector {
	return maps.Clone(v)
}

// RouterState access must be guarded by the owner's routing lock
type RouterState struct {
	Id NodeId
	// Vector is this node's distance vector. It also serves as the set of
	// known destinations: unreachable ones are kept with cost INF.
	Vector Vector
	// Links holds the direct neighbours and their link costs (always >= 1)
	Links map[NodeId]uint32
	// Neighbours holds the last vector announced by each neighbour. Entries
	// expire after RouteExpiryTime without a refresh.
	Neighbours *ttlcache.Cache[NodeId, Vector]
}

// NewRouterState seeds the vector with every destination in known as
// unreachable, and self at cost 0.
func NewRouterState(id NodeId, links map[NodeId]uint32, known []NodeId, expiry time.Duration) *RouterState {
	s := &RouterState{
		Id:     id,
		Vector: make(Vector),
		Links:  maps.Clone(links),
		Neighbours: ttlcache.New[NodeId, Vector](
			ttlcache.WithTTL[NodeId, Vector](expiry),
			ttlcache.WithDisableTouchOnHit[NodeId, Vector](),
		),
	}
	if s.Links == nil {
		s.Links = make(map[NodeId]uint32)
	}
	for _, k := range known {
		s.Vector[k] = INF
	}
	for n := range s.Links {
		s.Vector[n] = INF
	}
	s.Vector[id] = 0
	return s
}

// SortedNeighbours returns the direct neighbours in ascending identity order
func (s *RouterState) SortedNeighbours() []NodeId {
	return slices.Sorted(maps.Keys(s.Links))
}

// NeighbourVector returns the unexpired vector last announced by neigh
func (s *RouterState) NeighbourVector(neigh NodeId) (Vector, bool) {
	item := s.Neighbours.Get(neigh)
	if item == nil || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

// Destinations returns every known destination in ascending order
func (s *RouterState) Destinations() []NodeId {
	return slices.Sorted(maps.Keys(s.Vector))
}
