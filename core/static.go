package core

import (
	"time"

	"github.com/renmiamu/dvnet/state"
)

type vectorMsg struct {
	from, to state.NodeId
	vec      state.Vector
}

// offlineRouter queues vectors instead of sending them
type offlineRouter struct {
	id    state.NodeId
	queue *[]vectorMsg
}

func (o offlineRouter) SendVector(neigh state.NodeId, vec state.Vector) {
	*o.queue = append(*o.queue, vectorMsg{from: o.id, to: neigh, vec: vec})
}

func (o offlineRouter) Log(RouterEvent, string, ...any) {}

// Converge runs the distance-vector exchange of every node in cfg to a fixed
// point, with the initial link costs and lossless in-order delivery. It
// returns the resulting routing state of each node.
func Converge(cfg *state.NetworkCfg) map[state.NodeId]*state.RouterState {
	nodes := cfg.GetNodes()
	states := make(map[state.NodeId]*state.RouterState, len(nodes))
	for _, id := range nodes {
		// nothing expires during a synchronous run
		states[id] = state.NewRouterState(id, cfg.LinksOf(id), nodes, time.Hour)
	}
	var queue []vectorMsg
	for _, id := range nodes {
		BroadcastVector(states[id], offlineRouter{id: id, queue: &queue})
	}
	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]
		HandleNeighbourVector(states[msg.to], offlineRouter{id: msg.to, queue: &queue}, msg.from, msg.vec)
	}
	return states
}
