package core

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/renmiamu/dvnet/state"
	"golang.org/x/sync/errgroup"
)

// Outbound delivers a datagram to a direct neighbour
type Outbound interface {
	Send(to state.NodeId, pkt []byte) error
}

// Node ties the router, the transport and the reassembly buffer of one peer
// together. Routing and transport bookkeeping are guarded by two independent
// locks, owned by Router and by the shared TransferTables.
type Node struct {
	*state.Env
	Router      *DvRouter
	Transport   *Transport
	Reassembler *Reassembler
	tables      *state.TransferTables
	out         Outbound
	impair      Impairment
	onReceive   func(CompletedTransfer)
}

type NodeOption func(n *nodeOptions)

type nodeOptions struct {
	impair    Impairment
	rng       *rand.Rand
	onReceive func(CompletedTransfer)
}

// WithImpairment replaces the random loss configured in LocalCfg
func WithImpairment(i Impairment) NodeOption {
	return func(o *nodeOptions) {
		o.impair = i
	}
}

// WithRand seeds link cost perturbation
func WithRand(rng *rand.Rand) NodeOption {
	return func(o *nodeOptions) {
		o.rng = rng
	}
}

// OnReceive is called for every reassembled file
func OnReceive(fun func(CompletedTransfer)) NodeOption {
	return func(o *nodeOptions) {
		o.onReceive = fun
	}
}

func NewNode(env *state.Env, out Outbound, opts ...NodeOption) *Node {
	o := nodeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.impair == nil {
		ri := RandomImpairment{}
		if env.DropProbability != nil {
			ri.DropProbability = *env.DropProbability
		}
		if env.CorruptProbability != nil {
			ri.CorruptProbability = *env.CorruptProbability
		}
		o.impair = ri
	}
	tables := state.NewTransferTables()
	router := NewDvRouter(env, out, o.rng)
	return &Node{
		Env:         env,
		Router:      router,
		Transport:   NewTransport(env, tables, router, out),
		Reassembler: NewReassembler(env, tables),
		tables:      tables,
		out:         out,
		impair:      o.impair,
		onReceive:   o.onReceive,
	}
}

// Run drives the periodic tasks of the node until ctx is done: link cost
// perturbation, full vector advertisement and expiry of stale state.
func (n *Node) Run(ctx context.Context) error {
	n.Log.Info("node started", "cfg", n.LocalCfg.String(), "neighbours", n.LinksOf(n.Id))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return state.DelayedRepeatTask(gctx, func() error {
			n.Router.PerturbCosts()
			return nil
		}, n.CostUpdateInterval)
	})
	g.Go(func() error {
		return state.RepeatTask(gctx, func() error {
			n.Router.Advertise()
			return nil
		}, state.RouteUpdateDelay)
	})
	g.Go(func() error {
		return state.DelayedRepeatTask(gctx, func() error {
			n.Router.GcRouter()
			n.Reassembler.Gc()
			return nil
		}, state.GcDelay)
	})
	err := g.Wait()
	n.Router.Cleanup()
	n.Reassembler.Cleanup()
	n.Log.Info("node stopped")
	return err
}

// SendFile transfers the file at path to dst
func (n *Node) SendFile(ctx context.Context, dst state.NodeId, path string) (*TransferResult, error) {
	if _, ok := n.Peers[dst]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, dst)
	}
	return n.Transport.SendFile(ctx, dst, path)
}

type Progress struct {
	Outbound []OutboundProgress
	Inbound  []InboundProgress
}

func (n *Node) Progress() Progress {
	return Progress{
		Outbound: n.Transport.Progress(),
		Inbound:  n.Reassembler.Pending(),
	}
}
