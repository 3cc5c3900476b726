package core

import (
	"bytes"
	"math/rand/v2"

	"github.com/renmiamu/dvnet/protocol"
)

// Impairment emulates a lossy network on the receive path of every hop
type Impairment interface {
	// Drop reports whether the packet is lost
	Drop(h *protocol.Header) bool
	// Corrupt returns the payload as it arrived. It is only consulted for DATA.
	Corrupt(h *protocol.Header, payload []byte) []byte
}

// RandomImpairment drops packets and flips a single byte of DATA payloads
// with fixed probabilities. The zero value is a perfect network.
type RandomImpairment struct {
	DropProbability    float64
	CorruptProbability float64
}

func (i RandomImpairment) Drop(_ *protocol.Header) bool {
	return i.DropProbability > 0 && rand.Float64() < i.DropProbability
}

func (i RandomImpairment) Corrupt(_ *protocol.Header, payload []byte) []byte {
	if len(payload) == 0 || i.CorruptProbability <= 0 || rand.Float64() >= i.CorruptProbability {
		return payload
	}
	out := bytes.Clone(payload)
	idx := rand.IntN(len(out))
	out[idx]++
	return out
}

var _ Impairment = RandomImpairment{}
