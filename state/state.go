package state

import (
	"context"
	"log/slog"
)

// NodeId is the opaque identity of a peer in the address book
type NodeId string

// Env is shared by every task of a node and can be read from any goroutine
type Env struct {
	NetworkCfg
	LocalCfg
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
}
