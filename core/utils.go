package core

import (
	"github.com/renmiamu/dvnet/protocol"
	"github.com/renmiamu/dvnet/state"
)

func AddMetric(a, b uint32) uint32 {
	if a == state.INF || b == state.INF {
		return state.INF
	} else {
		return uint32(min(uint64(state.INFM), uint64(a)+uint64(b)))
	}
}

func toWireVector(v state.Vector) protocol.Vector {
	out := make(protocol.Vector, len(v))
	for k, c := range v {
		out[string(k)] = c
	}
	return out
}

func fromWireVector(v protocol.Vector) state.Vector {
	out := make(state.Vector, len(v))
	for k, c := range v {
		out[state.NodeId(k)] = c
	}
	return out
}
